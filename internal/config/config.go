package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. EBI_SERVER_PORT
const EnvPrefix = "EBI"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Reconcile ReconcileConfig `yaml:"reconcile" envconfig:"RECONCILE"`
	Sheets    SheetsConfig    `yaml:"sheets" envconfig:"SHEETS"`

	// Sources maps a source id (funding, productivity...) to where it is read
	// from. Only the YAML file can set it.
	Sources map[string]SourceConfig `yaml:"sources" ignored:"true" validate:"dive"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// CacheConfig is the freshness policy in front of every source
type CacheConfig struct {
	TTL         time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gte=0"`
	MaxEntries  int           `yaml:"max_entries" envconfig:"MAX_ENTRIES" validate:"gte=0"`
	LoadTimeout time.Duration `yaml:"load_timeout" envconfig:"LOAD_TIMEOUT" validate:"gte=0"`
}

// ReconcileConfig holds the defaults of the reconciliation engine
type ReconcileConfig struct {
	// Threshold is the identity resolver similarity cut-off
	Threshold float64 `yaml:"threshold" envconfig:"THRESHOLD" validate:"gt=0,lte=1"`
	// TieBreak is first_seen or lexical
	TieBreak  string `yaml:"tie_break" envconfig:"TIE_BREAK" validate:"oneof=first_seen first-seen lexical"`
	StartYear int    `yaml:"start_year" envconfig:"START_YEAR" validate:"min=1900,max=2200"`
	EndYear   int    `yaml:"end_year" envconfig:"END_YEAR" validate:"min=1900,max=2200,gtefield=StartYear"`
	// OverridesFile is a YAML file of funding overrides and renames applied to the catalog
	OverridesFile string `yaml:"overrides_file" envconfig:"OVERRIDES_FILE"`
}

// SheetsConfig configures the Google Sheets client
type SheetsConfig struct {
	CredentialsFile   string  `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gte=0"`
	Burst             int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// Source kinds
const (
	KindSheets = "sheets"
	KindXLSX   = "xlsx"
	KindCSV    = "csv"
)

// SourceConfig locates one ledger
type SourceConfig struct {
	Kind          string `yaml:"kind" validate:"required,oneof=sheets xlsx csv"`
	SpreadsheetID string `yaml:"spreadsheet_id" validate:"required_if=Kind sheets"`
	Range         string `yaml:"range" validate:"required_if=Kind sheets"`
	Path          string `yaml:"path" validate:"required_unless=Kind sheets"`
	Sheet         string `yaml:"sheet"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  45 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/ebidash.log",
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableTracing:  false,
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Cache: CacheConfig{
			TTL:         10 * time.Minute,
			LoadTimeout: time.Minute,
		},
		Reconcile: ReconcileConfig{
			Threshold: 0.8,
			TieBreak:  "first_seen",
			StartYear: 2008,
			EndYear:   2023,
		},
		Sheets: SheetsConfig{
			RequestsPerSecond: 1,
			Burst:             5,
		},
		Sources: map[string]SourceConfig{},
	}
}

// Load builds the configuration: defaults, then the YAML file, then
// environment variables. A .env file in the working directory is read first.
func Load() (*Config, error) {
	return LoadFile(configFilePath())
}

// LoadFile is Load with an explicit YAML path; empty skips the file
func LoadFile(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// configFilePath returns EBI_CONFIG_FILE or the first config.yaml found
func configFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules between sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.UsesSheets() && c.Sheets.CredentialsFile == "" {
		return errors.New("sheets sources configured without sheets.credentials_file")
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q needs a file_path", c.Logging.Output)
	}
	return nil
}

// UsesSheets reports whether any source is read through the Sheets API
func (c *Config) UsesSheets() bool {
	for _, s := range c.Sources {
		if s.Kind == KindSheets {
			return true
		}
	}
	return false
}

// SourceIDs returns the configured source ids in sorted order
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, time.Minute, cfg.Cache.LoadTimeout)
				assert.Equal(t, 0.8, cfg.Reconcile.Threshold)
				assert.Equal(t, 2008, cfg.Reconcile.StartYear)
				assert.Equal(t, 2023, cfg.Reconcile.EndYear)
				assert.Empty(t, cfg.Sources)
			},
		},
		{
			name: "file overlays defaults",
			file: `
server:
  port: 9000
cache:
  ttl: 2m
reconcile:
  tie_break: lexical
sources:
  portfolio:
    kind: xlsx
    path: data/portfolio.xlsx
    sheet: Companies
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, "lexical", cfg.Reconcile.TieBreak)
				require.Contains(t, cfg.Sources, "portfolio")
				assert.Equal(t, "Companies", cfg.Sources["portfolio"].Sheet)
				assert.False(t, cfg.UsesSheets())
			},
		},
		{
			name: "env wins over file",
			env:  map[string]string{"EBI_SERVER_PORT": "7070", "EBI_RECONCILE_THRESHOLD": "0.9"},
			file: "server:\n  port: 9000\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, 0.9, cfg.Reconcile.Threshold)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"EBI_SERVER_PORT": "70000"},
			wantErr: "Port",
		},
		{
			name:    "inverted year window",
			file:    "reconcile:\n  start_year: 2020\n  end_year: 2010\n",
			wantErr: "EndYear",
		},
		{
			name:    "unknown source kind",
			file:    "sources:\n  funding:\n    kind: ftp\n    path: x\n",
			wantErr: "Kind",
		},
		{
			name:    "sheets source without spreadsheet id",
			file:    "sheets:\n  credentials_file: key.json\nsources:\n  funding:\n    kind: sheets\n    range: Funding\n",
			wantErr: "SpreadsheetID",
		},
		{
			name:    "sheets source without credentials",
			file:    "sources:\n  funding:\n    kind: sheets\n    spreadsheet_id: abc\n    range: Funding\n",
			wantErr: "credentials_file",
		},
		{
			name:    "file logging without a path",
			env:     map[string]string{"EBI_LOGGING_OUTPUT": "file", "EBI_LOGGING_FILE_PATH": ""},
			wantErr: "file_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			cfg, err := LoadFile(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EBI_CACHE_MAX_ENTRIES=4\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("EBI_CACHE_MAX_ENTRIES") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Cache.MaxEntries)
}

func TestConfigFilePath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	assert.Equal(t, "", configFilePath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}"), 0o644))
	assert.Equal(t, "config.yaml", configFilePath())

	t.Setenv("EBI_CONFIG_FILE", "/etc/ebidash.yaml")
	assert.Equal(t, "/etc/ebidash.yaml", configFilePath())
}

func TestSourceIDsAndAddr(t *testing.T) {
	cfg := Default()
	cfg.Sources = map[string]SourceConfig{
		"portfolio": {Kind: KindXLSX, Path: "p.xlsx"},
		"funding":   {Kind: KindSheets, SpreadsheetID: "abc", Range: "Funding"},
	}
	assert.Equal(t, []string{"funding", "portfolio"}, cfg.SourceIDs())
	assert.True(t, cfg.UsesSheets())
	assert.Equal(t, ":8080", cfg.Addr())
}

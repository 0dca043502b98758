package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ebidash/internal/app"
	"ebidash/internal/config"
	"ebidash/internal/exporter"
	"ebidash/internal/infrastructure"
	"ebidash/internal/pipeline"
	"ebidash/internal/services"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts"
	"ebidash/pkg/contracts/domain"
)

// cliOptions lets tests replace the configured ledgers
type cliOptions struct {
	source sources.TableSource
}

type globalFlags struct {
	configFile string
	logLevel   string
}

func newRootCommand(opts cliOptions) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "report",
		Short: "Research funding reports",
		Long: `report reconciles the funding, productivity and administrative ledgers
and runs one of the dashboard reports over them.

Sources are read from the YAML config (--config, EBI_CONFIG_FILE or
./config.yaml); EBI_* environment variables override it.`,
		Version:       contracts.GetVersionInfo().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newListCommand(flags, opts))
	root.AddCommand(newRunCommand(flags, opts))
	return root
}

func newListCommand(flags *globalFlags, opts cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the report catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := buildService(cmd, flags, opts)
			if err != nil {
				return err
			}

			table := tablewriter.NewTable(cmd.OutOrStdout())
			table.Header("Name", "Window", "Sources", "Title")
			for _, s := range svc.List(cmd.Context()) {
				ids := make([]string, len(s.Sources))
				for i, id := range s.Sources {
					ids[i] = id.String()
				}
				if err := table.Append(s.Name, s.DefaultRange.String(), strings.Join(ids, ","), s.Title); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

type runFlags struct {
	start  int
	end    int
	query  string
	format string
	out    string
}

func newRunCommand(flags *globalFlags, opts cliOptions) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <report>",
		Short: "Run a report and export it",
		Args:  cobra.ExactArgs(1),
		Example: `  report run top-pis                              # JSON to stdout
  report run funding-by-type --start 2016 --end 2020 --format csv
  report run search --query algae --format xlsx --out exports/
  report run berkeley-lookback --out lookback.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := exporter.ParseFormat(rf.format)
			if err != nil {
				return err
			}
			svc, logger, err := buildService(cmd, flags, opts)
			if err != nil {
				return err
			}

			name := args[0]
			window, err := svc.DefaultRange(name)
			if err != nil {
				return err
			}
			var req pipeline.Request
			if rf.start != 0 || rf.end != 0 {
				if rf.start != 0 {
					window.Start = rf.start
				}
				if rf.end != 0 {
					window.End = rf.end
				}
				req.Range = &window
			}
			req.Query = strings.TrimSpace(rf.query)

			rep, err := svc.Generate(cmd.Context(), name, req)
			if err != nil {
				return err
			}

			exp := exporter.New(logger)
			if rf.out == "" {
				return exp.Write(cmd.OutOrStdout(), format, rep)
			}
			path := outputPath(rf.out, format, rep)
			if err := exp.WriteFile(path, format, rep); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d diagnostics)\n", path, rep.Diagnostics.Count())
			return nil
		},
	}

	cmd.Flags().IntVar(&rf.start, "start", 0, "first year of the window (default: the report's)")
	cmd.Flags().IntVar(&rf.end, "end", 0, "last year of the window (default: the report's)")
	cmd.Flags().StringVarP(&rf.query, "query", "q", "", "search text (search report only)")
	cmd.Flags().StringVarP(&rf.format, "format", "f", string(exporter.FormatJSON), "output format: json, csv, xlsx")
	cmd.Flags().StringVarP(&rf.out, "out", "o", "", "output file or directory (default: stdout)")
	return cmd
}

// outputPath puts the default file name inside out when out is a directory
func outputPath(out string, format exporter.Format, rep *domain.Report) string {
	name := format.FileName(rep.Name, rep.Range.String())
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(os.PathSeparator)) {
		return filepath.Join(out, name)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

func buildService(cmd *cobra.Command, flags *globalFlags, opts cliOptions) (*services.ReportService, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if flags.configFile != "" {
		cfg, err = config.LoadFile(flags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	cfg.Logging.Level = flags.logLevel
	cfg.Logging.Output = "console"

	logger, err := infrastructure.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	engine, err := app.NewEngine(cmd.Context(), cfg, app.EngineOptions{
		Logger: logger,
		Source: opts.source,
	})
	if err != nil {
		return nil, nil, err
	}
	return services.NewReportService(engine.Catalog, engine.Runner, logger), logger, nil
}

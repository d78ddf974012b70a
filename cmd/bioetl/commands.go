package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/internal/pipeline"
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/logger"
	"github.com/ajitpratap0/bioetl/pkg/metrics"
	"github.com/ajitpratap0/bioetl/pkg/observability"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Available entities:")
			for _, name := range extraction.Names() {
				d, err := extraction.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - %-10s %s (id: %s)\n", d.Name, d.Endpoint, d.IDColumn)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate [entity]",
		Short: "Validate a pipeline configuration without extracting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.LoadOptions{Path: configFile}
			if len(args) == 1 {
				opts.Entity = args[0]
				opts.Name = args[0]
			}
			cfg, err := config.LoadPipeline(opts)
			if err != nil {
				return err
			}
			if _, err := extraction.Lookup(cfg.Entity); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: pipeline=%s entity=%s format=%s\n",
				cfg.Name, cfg.Entity, cfg.Output.Format)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to pipeline YAML configuration")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

type extractFlags struct {
	configFile string
	idsFile    string
	limit      int
	dryRun     bool
	outputDir  string
	format     string
	compress   bool
	codec      string
	logLevel   string
	trace      bool
}

func newExtractCmd() *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract [entity]",
		Short: "Extract an entity and write its canonical table",
		Long: `Extract an entity from the ChEMBL API. Identifiers come from --ids-file
or source.ids in the configuration; without identifiers every record is
paged through.

Example:
  bioetl extract document --config configs/document.yaml --ids-file ids.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := ""
			if len(args) == 1 {
				entity = args[0]
			}
			return runExtract(cmd.Context(), cmd, entity, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to pipeline YAML configuration")
	flags.StringVar(&f.idsFile, "ids-file", "", "File of identifiers to extract (one per line, or a CSV with the id column)")
	flags.IntVar(&f.limit, "limit", 0, "Maximum number of records (0 = unlimited)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Resolve configuration and write an empty table without calling the API")
	flags.StringVarP(&f.outputDir, "output-dir", "o", "", "Output directory")
	flags.StringVar(&f.format, "format", "", "Output format (csv, parquet)")
	flags.BoolVar(&f.compress, "compress", false, "Compress output with zstd")
	flags.StringVar(&f.codec, "compression", "", "Output compression (none, zstd, gzip); overrides --compress")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&f.trace, "trace", false, "Export trace spans to stderr")
	return cmd
}

// overrides maps the flags the user set onto configuration keys.
func (f *extractFlags) overrides(cmd *cobra.Command) map[string]interface{} {
	set := map[string]interface{}{}
	changed := cmd.Flags().Changed
	if changed("ids-file") {
		set["source.ids_file"] = f.idsFile
	}
	if changed("limit") {
		set["runtime.limit"] = f.limit
	}
	if changed("dry-run") {
		set["runtime.dry_run"] = f.dryRun
	}
	if changed("output-dir") {
		set["output.dir"] = f.outputDir
	}
	if changed("format") {
		set["output.format"] = f.format
	}
	if changed("compress") {
		set["output.compress"] = f.compress
	}
	if changed("compression") {
		set["output.compression"] = f.codec
	}
	if changed("log-level") {
		set["observability.logging.level"] = f.logLevel
	}
	if changed("trace") {
		set["observability.enable_tracing"] = f.trace
	}
	return set
}

func runExtract(ctx context.Context, cmd *cobra.Command, entity string, f *extractFlags) error {
	cfg, err := config.LoadPipeline(config.LoadOptions{
		Path:      f.configFile,
		Name:      entity,
		Entity:    entity,
		Overrides: f.overrides(cmd),
	})
	if err != nil {
		return err
	}
	if entity != "" && cfg.Entity != entity {
		cfg.Entity = entity
	}

	if err := logger.Init(cfg.Observability.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get().With(zap.String("component", "bioetl-cli"))

	if cfg.Observability.EnableTracing {
		if err := observability.Init(ctx, observability.DefaultTracingConfig(version)); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := observability.Shutdown(shutdownCtx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if cfg.Observability.EnableMetrics && cfg.Observability.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Observability.MetricsAddr))
	}

	runner, err := pipeline.NewRunner(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d %s rows (release %s, mode %s, %d failed units)\n",
		report.RunID, report.Rows, report.Entity, releaseOrUnknown(report.Release), report.Mode, report.Stats.Failures)
	for _, a := range report.Artifacts {
		fmt.Fprintf(out, "  %s  %s\n", a.SHA256, a.Path)
	}
	if report.MetadataPath != "" {
		fmt.Fprintf(out, "  metadata: %s\n", report.MetadataPath)
	}
	return nil
}

func releaseOrUnknown(r string) string {
	if r == "" {
		return "unknown"
	}
	return r
}

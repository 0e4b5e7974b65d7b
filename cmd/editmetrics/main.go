package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/internal/config"
	"github.com/vjranagit/editmetrics/pkg/pipeline"
	"github.com/vjranagit/editmetrics/pkg/report"
	"github.com/vjranagit/editmetrics/pkg/storage"
)

const version = "0.3.0"

var (
	// Global flags
	configPath    string
	verbose       bool
	outputFormat  string
	showAll       bool
	skipMalformed bool
	archiveRuns   bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "editmetrics",
	Short: "Normalized metric series and interleaving counts for editing experiments",
	Long: `editmetrics turns per-run JSON snapshots of a collaborative-editing testbed
into ordered, normalized series per experiment axis, compares heap sizes of
algorithm variants, and counts how far derived documents drift from a
reference document.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("skip-malformed") {
			cfg.Pipeline.SkipMalformed = skipMalformed
		}
		if cmd.Flags().Changed("archive") {
			cfg.Storage.Enabled = archiveRuns
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = cfg.ZapConfig(verbose).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "editmetrics.yaml", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().BoolVar(&showAll, "all", false, "Also show series without any non-zero value")
	rootCmd.PersistentFlags().BoolVar(&skipMalformed, "skip-malformed", false, "Skip unparseable snapshot files instead of failing the axis")
	rootCmd.PersistentFlags().BoolVar(&archiveRuns, "archive", false, "Store assembled series in the result archive")

	rootCmd.AddCommand(runCmd, seriesCmd, heapCmd, interleavingCmd, historyCmd, serveCmd, initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newEmitter builds the report emitter from the global flags
func newEmitter() (*report.Emitter, error) {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return report.NewEmitter(os.Stdout, cfg.StyleTable(),
		report.WithFormat(format),
		report.WithAll(showAll)), nil
}

// openArchive opens the result archive when it is enabled. The returned
// close func is always safe to call.
func openArchive() (storage.Archive, func(), error) {
	if !cfg.Storage.Enabled {
		return nil, func() {}, nil
	}

	archive, err := storage.NewArchive(cfg.ToStorageConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open result archive: %w", err)
	}
	logger.Debug("result archive opened", zap.String("path", cfg.Storage.Path))

	return archive, func() {
		if err := archive.Close(); err != nil {
			logger.Warn("failed to close result archive", zap.Error(err))
		}
	}, nil
}

// newRunner builds a pipeline runner wired to the archive, if any
func newRunner(archive storage.Archive, metrics *pipeline.Metrics) *pipeline.Runner {
	return pipeline.New(logger, pipeline.Options{
		SkipMalformed: cfg.Pipeline.SkipMalformed,
		Workers:       cfg.Pipeline.Workers,
		Archive:       archive,
		Metrics:       metrics,
	})
}

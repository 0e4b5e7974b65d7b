package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/internal/config"
	"github.com/vjranagit/editmetrics/pkg/api"
	"github.com/vjranagit/editmetrics/pkg/pipeline"
	"github.com/vjranagit/editmetrics/pkg/report"
	"github.com/vjranagit/editmetrics/pkg/series"
	"github.com/vjranagit/editmetrics/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Assemble and normalize every configured axis",
	Long: `Runs the pipeline of every configured axis in parallel. A missing axis
directory skips that axis; any other failure is reported per axis without
stopping the rest.`,
	Args: cobra.NoArgs,
	RunE: runAxes,
}

var seriesCmd = &cobra.Command{
	Use:   "series [axis]",
	Short: "Assemble and normalize one axis",
	Long: `Runs one configured axis. --dir reads a different directory, and
--metrics replaces the requested metric set.

Example:
  editmetrics series commit --dir debug/metadata/no_byzantine_nodes`,
	Args: cobra.ExactArgs(1),
	RunE: runSeries,
}

var heapCmd = &cobra.Command{
	Use:   "heap",
	Short: "Compare heap sizes of the algorithm variants",
	Args:  cobra.NoArgs,
	RunE:  runHeap,
}

var interleavingCmd = &cobra.Command{
	Use:   "interleaving",
	Short: "Count lines by which each document diverges from the reference",
	Args:  cobra.NoArgs,
	RunE:  runInterleaving,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived runs, or archived series with --metric",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve series, comparisons and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the default configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

var (
	seriesDir     string
	seriesMetrics []string
	seriesVariant string

	interleavingRef  string
	interleavingDocs string
	interleavingOut  string

	historyAxis    string
	historyVariant string
	historyMetric  string
	historyRun     string
)

func init() {
	seriesCmd.Flags().StringVar(&seriesDir, "dir", "", "Snapshot directory (overrides the configured one)")
	seriesCmd.Flags().StringSliceVar(&seriesMetrics, "metrics", nil, "Metrics to assemble (overrides the axis metric set)")
	seriesCmd.Flags().StringVar(&seriesVariant, "variant", "", "Variant label for archived results")

	interleavingCmd.Flags().StringVar(&interleavingRef, "reference", "", "Reference document (overrides config)")
	interleavingCmd.Flags().StringVar(&interleavingDocs, "documents", "", "Directory of documents to compare (overrides config)")
	interleavingCmd.Flags().StringVar(&interleavingOut, "write", "", "Also write the report as JSON to this file (overrides config)")

	historyCmd.Flags().StringVar(&historyAxis, "axis", "", "Filter by axis")
	historyCmd.Flags().StringVar(&historyVariant, "variant", "", "Filter by variant")
	historyCmd.Flags().StringVar(&historyMetric, "metric", "", "Show archived series of this metric")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Filter by run ID")
}

func runAxes(cmd *cobra.Command, args []string) error {
	reqs, err := cfg.AxisRequests()
	if err != nil {
		return err
	}
	archive, closeArchive, err := openArchive()
	if err != nil {
		return err
	}
	defer closeArchive()

	emitter, err := newEmitter()
	if err != nil {
		return err
	}

	outcomes := newRunner(archive, nil).RunAll(cmd.Context(), reqs)

	failed := 0
	for _, o := range outcomes {
		switch o.Status() {
		case pipeline.StatusOK:
		case pipeline.StatusNotFound:
			logger.Warn("axis skipped", zap.String("axis", o.Request.Axis.Name), zap.Error(o.Err))
			continue
		default:
			failed++
		}

		if o.Result == nil {
			emitter.Error(o.Request.Axis.Name, o.Err)
			continue
		}
		if err := emitter.Axis(o.Result); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d axes failed", failed, len(outcomes))
	}
	return nil
}

func runSeries(cmd *cobra.Command, args []string) error {
	reqs, err := cfg.AxisRequests()
	if err != nil {
		return err
	}

	var req *pipeline.AxisRequest
	for i := range reqs {
		if reqs[i].Axis.Name == args[0] {
			req = &reqs[i]
			break
		}
	}
	if req == nil {
		a, err := config.AxisConfig{Name: args[0]}.Axis()
		if err != nil {
			return fmt.Errorf("unknown axis %q", args[0])
		}
		req = &pipeline.AxisRequest{Axis: a}
	}

	if seriesDir != "" {
		req.Dir = seriesDir
	}
	if req.Dir == "" {
		return fmt.Errorf("axis %q has no directory; pass --dir", args[0])
	}
	if len(seriesMetrics) > 0 {
		req.Axis = req.Axis.WithMetrics(seriesMetrics...)
	}
	if seriesVariant != "" {
		req.Variant = seriesVariant
	}

	archive, closeArchive, err := openArchive()
	if err != nil {
		return err
	}
	defer closeArchive()

	emitter, err := newEmitter()
	if err != nil {
		return err
	}

	res, err := newRunner(archive, nil).RunAxis(cmd.Context(), *req)
	if res != nil {
		if rerr := emitter.Axis(res); rerr != nil {
			return rerr
		}
	}
	return err
}

func runHeap(cmd *cobra.Command, args []string) error {
	emitter, err := newEmitter()
	if err != nil {
		return err
	}

	cmp, err := newRunner(nil, nil).Heap(cmd.Context(), cfg.HeapRequest())
	if err != nil {
		return err
	}
	return emitter.Heap(cmp)
}

func runInterleaving(cmd *cobra.Command, args []string) error {
	ref, docs, out := cfg.Interleaving.Reference, cfg.Interleaving.Documents, cfg.Interleaving.Output
	if interleavingRef != "" {
		ref = interleavingRef
	}
	if interleavingDocs != "" {
		docs = interleavingDocs
	}
	if interleavingOut != "" {
		out = interleavingOut
	}

	emitter, err := newEmitter()
	if err != nil {
		return err
	}

	r, err := newRunner(nil, nil).Interleaving(cmd.Context(), ref, docs)
	if err != nil {
		return err
	}

	if out != "" {
		if err := report.WriteJSON(out, r); err != nil {
			return err
		}
		logger.Info("diff report written", zap.String("file", out))
	}
	return emitter.Diff(r)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg.Storage.Enabled = true
	archive, closeArchive, err := openArchive()
	if err != nil {
		return err
	}
	defer closeArchive()

	emitter, err := newEmitter()
	if err != nil {
		return err
	}

	if historyMetric == "" {
		runs, err := archive.Runs(cmd.Context())
		if err != nil {
			return err
		}
		filtered := runs[:0]
		for _, r := range runs {
			if (historyAxis == "" || r.Axis == historyAxis) &&
				(historyVariant == "" || r.Variant == historyVariant) &&
				(historyRun == "" || r.ID == historyRun) {
				filtered = append(filtered, r)
			}
		}
		return emitter.Runs(filtered)
	}

	found, err := archive.Query(cmd.Context(), storage.SeriesQuery{
		Axis:    historyAxis,
		Variant: historyVariant,
		Metric:  historyMetric,
		RunID:   historyRun,
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no archived series match")
		return nil
	}

	sources := make([]series.Source, len(found))
	for i, s := range found {
		sources[i] = series.Source{
			Name:   fmt.Sprintf("%s %s", s.Run.CreatedAt.Local().Format(time.DateTime), s.Run.ID),
			Series: s.Series,
		}
	}
	cmp, err := series.Align(historyMetric, sources...)
	if err != nil {
		return err
	}
	return emitter.History(cmp)
}

func runServe(cmd *cobra.Command, args []string) error {
	reqs, err := cfg.AxisRequests()
	if err != nil {
		return err
	}
	archive, closeArchive, err := openArchive()
	if err != nil {
		return err
	}
	defer closeArchive()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewServer(logger, newRunner(archive, pipeline.NewMetrics(reg)), api.Options{
		Addr:          cfg.Server.ListenAddr,
		Timeout:       cfg.Server.Timeout,
		Axes:          reqs,
		Heap:          cfg.HeapRequest(),
		Reference:     cfg.Interleaving.Reference,
		Documents:     cfg.Interleaving.Documents,
		SkipMalformed: cfg.Pipeline.SkipMalformed,
		Archive:       archive,
		Cache:         storage.NewResultCache(cfg.Server.CacheSize, cfg.Server.CacheTTL),
		Gatherer:      reg,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	logger.Info("shutdown signal received, stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// Package pipeline wires loading, assembly, normalization and diffing into
// per-axis runs.
//
// Axes are independent: each consumes its own directory and produces its own
// result, so RunAll executes them in parallel and a failing axis never stops
// the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vjranagit/editmetrics/pkg/axis"
	"github.com/vjranagit/editmetrics/pkg/interleave"
	"github.com/vjranagit/editmetrics/pkg/series"
	"github.com/vjranagit/editmetrics/pkg/snapshot"
	"github.com/vjranagit/editmetrics/pkg/storage"
	"github.com/vjranagit/editmetrics/pkg/types"
)

// AxisRequest asks for one axis to be built from one directory
type AxisRequest struct {
	Axis    axis.Axis
	Dir     string
	Variant string
}

// Outcome is the result of one axis run. Result may be set together with Err
// when some metrics assembled and others did not.
type Outcome struct {
	Request AxisRequest
	Result  *types.AxisResult
	Err     error
}

// Status classifies an outcome for reporting
func (o Outcome) Status() string {
	return status(o.Result, o.Err)
}

func status(res *types.AxisResult, err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, types.ErrNotFound):
		return StatusNotFound
	case res != nil && len(res.Series) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Options configures a Runner
type Options struct {
	// SkipMalformed skips unparseable snapshot files instead of failing the axis.
	SkipMalformed bool
	// Workers bounds parallel axis runs and document comparisons; <= 0 means one per CPU.
	Workers int
	// Archive, if set, receives every assembled axis result.
	Archive storage.Archive
	// Metrics, if set, instruments runs.
	Metrics *Metrics
}

// Runner executes pipelines
type Runner struct {
	opts    Options
	loader  *snapshot.Loader
	engine  *interleave.Engine
	metrics *Metrics
	logger  *zap.Logger
}

// New creates a new runner
func New(logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &Runner{
		opts:    opts,
		loader:  snapshot.NewLoader(logger, opts.SkipMalformed),
		engine:  interleave.NewEngine(opts.Workers),
		metrics: metrics,
		logger:  logger,
	}
}

// RunAxis loads the axis directory, assembles the requested metrics and
// normalizes them. Load-level failures (missing directory, duplicate keys,
// malformed files) return a nil result. Metrics that fail to assemble are
// listed in Result.Failed and joined into the returned error.
func (r *Runner) RunAxis(ctx context.Context, req AxisRequest) (*types.AxisResult, error) {
	start := time.Now()
	res, err := r.runAxis(ctx, req)

	st := status(res, err)
	r.metrics.AxisRuns.WithLabelValues(req.Axis.Name, st).Inc()
	r.metrics.AxisDuration.WithLabelValues(req.Axis.Name).Observe(time.Since(start).Seconds())

	log := r.logger.With(
		zap.String("axis", req.Axis.Name),
		zap.String("variant", req.Variant),
		zap.String("dir", req.Dir),
		zap.String("status", st))

	switch st {
	case StatusOK:
		log.Info("axis assembled", zap.Int("points", len(res.Keys)), zap.Int("metrics", len(res.Series)))
	case StatusNotFound:
		log.Warn("axis skipped", zap.Error(err))
	default:
		log.Error("axis failed", zap.Error(err))
	}

	if res != nil && len(res.Series) > 0 && r.opts.Archive != nil {
		run, aerr := r.opts.Archive.Put(ctx, res)
		if aerr != nil {
			log.Error("failed to archive axis result", zap.Error(aerr))
		} else {
			log.Debug("axis result archived", zap.String("run", run.ID))
		}
	}

	return res, err
}

func (r *Runner) runAxis(ctx context.Context, req AxisRequest) (*types.AxisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loaded, err := r.loader.Load(req.Dir, req.Axis)
	if err != nil {
		return nil, err
	}

	r.metrics.SnapshotsLoaded.WithLabelValues(req.Axis.Name).Add(float64(len(loaded.Snapshots)))
	r.metrics.FilesSkipped.WithLabelValues(req.Axis.Name).Add(float64(len(loaded.Skipped)))

	set, err := series.Assemble(loaded.Snapshots, req.Axis.Metrics)
	if set == nil {
		return nil, err
	}

	res := &types.AxisResult{
		Axis:       req.Axis.Name,
		Label:      req.Axis.Label,
		Variant:    req.Variant,
		Metrics:    append([]string(nil), req.Axis.Metrics...),
		Keys:       loaded.Keys(),
		Series:     set,
		Normalized: series.NormalizeAll(set),
	}
	for _, s := range loaded.Skipped {
		res.Skipped = append(res.Skipped, s.Path)
	}

	if err != nil {
		res.Failed = make(map[string]string)
		for metric, ferr := range series.FailedMetrics(err) {
			res.Failed[metric] = ferr.Error()
		}
	}

	return res, err
}

// RunAll runs every request in parallel. Outcomes are returned in request
// order once all runs have finished.
func (r *Runner) RunAll(ctx context.Context, reqs []AxisRequest) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := r.RunAxis(ctx, req)
			outcomes[i] = Outcome{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Interleaving compares every document in docsDir with the reference file
func (r *Runner) Interleaving(ctx context.Context, referencePath, docsDir string) (types.DiffReport, error) {
	refLines, err := snapshot.ReadDocument(referencePath)
	if err != nil {
		return types.DiffReport{}, err
	}

	docs, err := snapshot.ReadDocuments(docsDir)
	if err != nil {
		return types.DiffReport{}, err
	}

	report, err := r.engine.Compare(ctx, referencePath, refLines, docs)
	if err != nil {
		return types.DiffReport{}, fmt.Errorf("failed to compare documents: %w", err)
	}

	r.metrics.Documents.Set(float64(report.Count))
	for _, c := range report.Entries {
		r.metrics.DiffLines.Observe(float64(c))
	}

	r.logger.Info("interleaving computed",
		zap.String("reference", referencePath),
		zap.String("documents", docsDir),
		zap.Int("count", report.Count),
		zap.Float64("average", report.Mean))

	return report, nil
}

// VariantDir names one algorithm variant's edit-axis directory
type VariantDir struct {
	Name string
	Dir  string
}

// HeapRequest asks for a heap-size comparison across variants
type HeapRequest struct {
	Variants []VariantDir
	// CommitSizes is the aggregate commit-size record; optional.
	CommitSizes string
	// ReferenceName labels the commit-size column.
	ReferenceName string
}

// Heap aligns the edit-axis heap size of every variant, plus the commit-size
// record, on the union of edit numbers. Missing inputs are skipped; any
// other failure aborts the comparison.
func (r *Runner) Heap(ctx context.Context, req HeapRequest) (*types.Comparison, error) {
	var sources []series.Source

	for _, v := range req.Variants {
		res, err := r.RunAxis(ctx, AxisRequest{
			Axis:    axis.Edit.WithMetrics(snapshot.FieldHeapSize),
			Dir:     v.Dir,
			Variant: v.Name,
		})
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
		sources = append(sources, series.Source{Name: v.Name, Series: res.Series[snapshot.FieldHeapSize]})
	}

	refName := ""
	if req.CommitSizes != "" {
		s, err := snapshot.LoadCommitSizes(req.CommitSizes)
		switch {
		case errors.Is(err, types.ErrNotFound):
			r.logger.Warn("commit sizes skipped", zap.String("file", req.CommitSizes), zap.Error(err))
		case err != nil:
			return nil, err
		default:
			refName = req.ReferenceName
			if refName == "" {
				refName = "reference"
			}
			sources = append(sources, series.Source{Name: refName, Series: s})
		}
	}

	cmp, err := series.Align(axis.Edit.Label, sources...)
	if err != nil {
		return nil, err
	}
	cmp.Reference = refName
	return cmp, nil
}

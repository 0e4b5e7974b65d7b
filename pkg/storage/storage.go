// Package storage archives assembled axis results so runs of the same
// experiment can be compared over time.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Key prefixes
const (
	prefixRun    = "run/"
	prefixMeta   = "meta/"
	prefixSeries = "series/"
)

// ErrRunNotFound is returned when a run ID is unknown to the archive
var ErrRunNotFound = errors.New("storage: run not found")

// Archive defines the contract for the result archive
type Archive interface {
	// Put stores every series of an axis result under a new run
	Put(ctx context.Context, res *types.AxisResult) (Run, error)

	// Query returns archived series matching the query, oldest run first
	Query(ctx context.Context, q SeriesQuery) ([]StoredSeries, error)

	// Runs lists archived runs, oldest first
	Runs(ctx context.Context) ([]Run, error)

	// SeriesCount returns the number of distinct archived series
	SeriesCount() int

	// Close closes the archive
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	RetentionDays    int
	CompressionLevel int
	InMemory         bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		RetentionDays:    0,
		CompressionLevel: 3,
	}
}

// Run describes one archived axis result
type Run struct {
	ID        string    `json:"id"`
	Axis      string    `json:"axis"`
	Variant   string    `json:"variant,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   []string  `json:"metrics"`
	Points    int       `json:"points"`
}

// SeriesQuery selects archived series. Empty fields match anything.
type SeriesQuery struct {
	Axis    string
	Variant string
	Metric  string
	RunID   string
}

// StoredSeries is one series read back from the archive
type StoredSeries struct {
	Run    Run                `json:"run"`
	Labels Labels             `json:"labels"`
	Series types.MetricSeries `json:"series"`
}

// badgerArchive implements Archive using BadgerDB
type badgerArchive struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	now        func() time.Time
}

// NewArchive opens (or creates) an archive and rebuilds its label index
func NewArchive(cfg *Config) (Archive, error) {
	return openArchive(cfg)
}

func openArchive(cfg *Config) (*badgerArchive, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	a := &badgerArchive{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
		now:        time.Now,
	}

	if err := a.loadIndex(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return a, nil
}

// loadIndex rebuilds the in-memory label index from the meta keys
func (a *badgerArchive) loadIndex() error {
	return a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixMeta)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var l Labels
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &l)
			})
			if err != nil {
				return fmt.Errorf("failed to decode series labels: %w", err)
			}
			a.index.AddSeries(l)
		}
		return nil
	})
}

type blockPayload struct {
	Count            int    `json:"count"`
	CompressedKeys   []byte `json:"keys"`
	CompressedValues []byte `json:"values"`
}

// Put implements Archive.Put
func (a *badgerArchive) Put(ctx context.Context, res *types.AxisResult) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}

	run := Run{
		ID:        uuid.New().String(),
		Axis:      res.Axis,
		Variant:   res.Variant,
		CreatedAt: a.now().UTC(),
		Metrics:   make([]string, 0, len(res.Series)),
		Points:    len(res.Keys),
	}
	for _, m := range res.Metrics {
		if _, ok := res.Series[m]; ok {
			run.Metrics = append(run.Metrics, m)
		}
	}

	runBytes, err := json.Marshal(run)
	if err != nil {
		return Run{}, fmt.Errorf("failed to marshal run: %w", err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(a.entry(runKey(run.ID), runBytes)); err != nil {
			return err
		}

		for _, metric := range run.Metrics {
			s := res.Series[metric]
			if err := s.Validate(); err != nil {
				return err
			}

			labels := Labels{Axis: res.Axis, Variant: res.Variant, Metric: metric}
			fp := labels.Fingerprint()

			metaBytes, err := json.Marshal(labels)
			if err != nil {
				return fmt.Errorf("failed to marshal labels: %w", err)
			}
			if err := txn.Set(metaKey(fp), metaBytes); err != nil {
				return err
			}

			payload, err := json.Marshal(&blockPayload{
				Count:            s.Len(),
				CompressedKeys:   a.compressor.CompressKeys(s.Keys),
				CompressedValues: a.compressor.CompressValues(s.Values),
			})
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
			if err := txn.SetEntry(a.entry(seriesKey(fp, run.ID), payload)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, fmt.Errorf("failed to write run: %w", err)
	}

	for _, metric := range run.Metrics {
		a.index.AddSeries(Labels{Axis: res.Axis, Variant: res.Variant, Metric: metric})
	}

	return run, nil
}

// entry applies the retention TTL, if any
func (a *badgerArchive) entry(key, val []byte) *badger.Entry {
	e := badger.NewEntry(key, val)
	if a.cfg.RetentionDays > 0 {
		e = e.WithTTL(time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
	}
	return e
}

// Query implements Archive.Query
func (a *badgerArchive) Query(ctx context.Context, q SeriesQuery) ([]StoredSeries, error) {
	fps := a.index.FindSeries(map[string]string{
		LabelAxis:    q.Axis,
		LabelVariant: q.Variant,
		LabelMetric:  q.Metric,
	})

	var out []StoredSeries
	runs := make(map[string]Run)

	err := a.db.View(func(txn *badger.Txn) error {
		for _, fp := range fps {
			if err := ctx.Err(); err != nil {
				return err
			}

			labels, ok := a.index.GetSeries(fp)
			if !ok {
				continue
			}

			found, err := a.readSeries(txn, fp, labels, q.RunID, runs)
			if err != nil {
				return err
			}
			out = append(out, found...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Run.CreatedAt.Equal(out[j].Run.CreatedAt) {
			return out[i].Run.CreatedAt.Before(out[j].Run.CreatedAt)
		}
		return out[i].Labels.Metric < out[j].Labels.Metric
	})
	return out, nil
}

// readSeries reads every archived block of one series, skipping blocks whose
// run has expired
func (a *badgerArchive) readSeries(txn *badger.Txn, fp uint64, labels Labels, runID string, runs map[string]Run) ([]StoredSeries, error) {
	prefix := seriesPrefix(fp)
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 16, Prefix: prefix})
	defer it.Close()

	var out []StoredSeries
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), string(prefix))
		if runID != "" && id != runID {
			continue
		}

		run, ok := runs[id]
		if !ok {
			r, err := getRun(txn, id)
			if errors.Is(err, ErrRunNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			runs[id] = r
			run = r
		}

		var payload blockPayload
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &payload) }); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		s, err := a.decode(labels.Metric, &payload)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredSeries{Run: run, Labels: labels, Series: s})
	}
	return out, nil
}

func (a *badgerArchive) decode(metric string, p *blockPayload) (types.MetricSeries, error) {
	keys, err := a.compressor.DecompressKeys(p.CompressedKeys, p.Count)
	if err != nil {
		return types.MetricSeries{}, fmt.Errorf("failed to decompress keys: %w", err)
	}
	values, err := a.compressor.DecompressValues(p.CompressedValues, p.Count)
	if err != nil {
		return types.MetricSeries{}, fmt.Errorf("failed to decompress values: %w", err)
	}
	return types.MetricSeries{Metric: metric, Keys: keys, Values: values}, nil
}

// Runs implements Archive.Runs
func (a *badgerArchive) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixRun)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: prefix})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Run
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				return fmt.Errorf("failed to decode run: %w", err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}

// SeriesCount implements Archive.SeriesCount
func (a *badgerArchive) SeriesCount() int {
	return a.index.SeriesCount()
}

// Close implements Archive.Close
func (a *badgerArchive) Close() error {
	if a.compressor != nil {
		a.compressor.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func getRun(txn *badger.Txn, id string) (Run, error) {
	item, err := txn.Get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
		return Run{}, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return r, nil
}

func runKey(id string) []byte {
	return []byte(prefixRun + id)
}

func metaKey(fp uint64) []byte {
	return []byte(prefixMeta + strconv.FormatUint(fp, 16))
}

func seriesPrefix(fp uint64) []byte {
	return []byte(prefixSeries + strconv.FormatUint(fp, 16) + "/")
}

func seriesKey(fp uint64, runID string) []byte {
	return append(seriesPrefix(fp), runID...)
}

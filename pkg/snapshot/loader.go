// Package snapshot reads per-run measurement files from disk.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/pkg/axis"
	"github.com/vjranagit/editmetrics/pkg/types"
)

// Loader reads a directory of snapshot files for one axis
type Loader struct {
	// SkipMalformed skips unparseable files instead of failing the load.
	SkipMalformed bool
	logger        *zap.Logger
}

// Skip records a file left out of a load and why
type Skip struct {
	Path string
	Err  error
}

// Result holds the snapshots of one directory sorted by key
type Result struct {
	Snapshots []types.Snapshot
	Skipped   []Skip
}

// Keys returns the ordering keys of the loaded snapshots
func (r *Result) Keys() []types.OrderingKey {
	keys := make([]types.OrderingKey, len(r.Snapshots))
	for i, s := range r.Snapshots {
		keys[i] = s.Key
	}
	return keys
}

// NewLoader creates a new loader
func NewLoader(logger *zap.Logger, skipMalformed bool) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		SkipMalformed: skipMalformed,
		logger:        logger,
	}
}

// Load reads every snapshot of the axis found in dir with the default loader,
// failing on the first malformed file.
func Load(dir string, a axis.Axis) ([]types.Snapshot, error) {
	res, err := NewLoader(nil, false).Load(dir, a)
	if err != nil {
		return nil, err
	}
	return res.Snapshots, nil
}

// Load enumerates dir, keeps files the axis accepts and can key, parses each
// one and returns them sorted ascending by key.
func (l *Loader) Load(dir string, a axis.Axis) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.InputError{Op: "load", Path: dir, Err: types.ErrNotFound}
		}
		return nil, fmt.Errorf("failed to read snapshot directory %s: %w", dir, err)
	}

	type keyed struct {
		key  types.OrderingKey
		path string
	}

	seen := make(map[types.OrderingKey]string)
	files := make([]keyed, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !a.Accepts(entry.Name()) {
			continue
		}

		key, ok := a.Extract(entry.Name())
		if !ok {
			l.logger.Debug("ignoring file without ordering key",
				zap.String("axis", a.Name),
				zap.String("file", entry.Name()))
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if prev, dup := seen[key]; dup {
			return nil, &types.InputError{
				Op:   "load",
				Path: path,
				Key:  types.KeyRef(key),
				Err:  fmt.Errorf("%w: also claimed by %s", types.ErrDuplicateKey, filepath.Base(prev)),
			}
		}
		seen[key] = path
		files = append(files, keyed{key: key, path: path})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })

	res := &Result{Snapshots: make([]types.Snapshot, 0, len(files))}
	for _, f := range files {
		rec, err := ReadRecord(f.path)
		if err != nil {
			if l.SkipMalformed && errors.Is(err, types.ErrMalformedInput) {
				l.logger.Warn("skipping malformed snapshot",
					zap.String("axis", a.Name),
					zap.String("file", f.path),
					zap.Error(err))
				res.Skipped = append(res.Skipped, Skip{Path: f.path, Err: err})
				continue
			}
			var ie *types.InputError
			if errors.As(err, &ie) {
				ie.Key = types.KeyRef(f.key)
			}
			return nil, err
		}

		res.Snapshots = append(res.Snapshots, types.Snapshot{
			Key:    f.key,
			Source: f.path,
			Record: rec,
		})
	}

	l.logger.Debug("loaded snapshots",
		zap.String("axis", a.Name),
		zap.String("dir", dir),
		zap.Int("count", len(res.Snapshots)),
		zap.Int("skipped", len(res.Skipped)))

	return res, nil
}

// ReadRecord reads and parses one snapshot file as a JSON object
func ReadRecord(path string) (types.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.InputError{Op: "read", Path: path, Err: types.ErrNotFound}
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var rec types.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &types.InputError{
			Op:   "parse",
			Path: path,
			Err:  fmt.Errorf("%w: %v", types.ErrMalformedInput, err),
		}
	}
	if rec == nil {
		return nil, &types.InputError{
			Op:   "parse",
			Path: path,
			Err:  fmt.Errorf("%w: document is not an object", types.ErrMalformedInput),
		}
	}

	return rec, nil
}

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Field names of the aggregate commit-size record
const (
	FieldEditNumber = "edit_number"
	FieldHeapSize   = "heap_size"
)

// LoadCommitSizes reads an aggregate commit-size record: a JSON array of
// objects each carrying edit_number and heap_size. The result is sorted by
// edit number.
func LoadCommitSizes(path string) (types.MetricSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.MetricSeries{}, &types.InputError{Op: "load", Path: path, Err: types.ErrNotFound}
		}
		return types.MetricSeries{}, fmt.Errorf("failed to read commit sizes %s: %w", path, err)
	}

	var entries []types.Record
	if err := json.Unmarshal(data, &entries); err != nil {
		return types.MetricSeries{}, &types.InputError{
			Op:   "parse",
			Path: path,
			Err:  fmt.Errorf("%w: %v", types.ErrMalformedInput, err),
		}
	}

	type point struct {
		key   types.OrderingKey
		value float64
	}

	points := make([]point, 0, len(entries))
	seen := make(map[types.OrderingKey]bool, len(entries))

	for i, entry := range entries {
		key, err := editNumber(entry)
		if err != nil {
			return types.MetricSeries{}, &types.InputError{
				Op:     fmt.Sprintf("parse entry %d", i),
				Path:   path,
				Metric: FieldEditNumber,
				Err:    err,
			}
		}
		if seen[key] {
			return types.MetricSeries{}, &types.InputError{Op: fmt.Sprintf("parse entry %d", i), Path: path, Key: types.KeyRef(key), Err: types.ErrDuplicateKey}
		}
		seen[key] = true

		v, err := entry.Value(FieldHeapSize)
		if err != nil {
			return types.MetricSeries{}, &types.InputError{
				Op:     fmt.Sprintf("parse entry %d", i),
				Path:   path,
				Key:    types.KeyRef(key),
				Metric: FieldHeapSize,
				Err:    err,
			}
		}
		points = append(points, point{key: key, value: v})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].key < points[j].key })

	series := types.MetricSeries{
		Metric: FieldHeapSize,
		Keys:   make([]types.OrderingKey, len(points)),
		Values: make([]float64, len(points)),
	}
	for i, p := range points {
		series.Keys[i] = p.key
		series.Values[i] = p.value
	}
	return series, nil
}

func editNumber(entry types.Record) (types.OrderingKey, error) {
	if entry == nil {
		return 0, fmt.Errorf("%w: entry is not an object", types.ErrMalformedInput)
	}
	raw, ok := entry[FieldEditNumber]
	if !ok {
		return 0, types.ErrMissingField
	}

	n, err := types.ParseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: edit number is not numeric", types.ErrMalformedInput)
	}
	k, err := n.Int64()
	if err != nil || k < 0 {
		return 0, fmt.Errorf("%w: edit number %q is not a non-negative integer", types.ErrMalformedInput, n.String())
	}
	return types.OrderingKey(k), nil
}

// Package series turns loaded snapshots into ordered, comparable series.
package series

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Assemble projects each requested metric out of the snapshots, in ascending
// key order. Snapshots need not be sorted, but their keys must be unique.
//
// A snapshot lacking a metric fails that metric only: the returned map holds
// every metric that assembled, and the error joins one *types.InputError per
// failed metric. Values are never defaulted.
func Assemble(snaps []types.Snapshot, metrics []string) (map[string]types.MetricSeries, error) {
	ordered := make([]types.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Key == ordered[i-1].Key {
			return nil, &types.InputError{
				Op:   "assemble",
				Path: ordered[i].Source,
				Key:  types.KeyRef(ordered[i].Key),
				Err:  fmt.Errorf("%w: also claimed by %s", types.ErrDuplicateKey, ordered[i-1].Source),
			}
		}
	}

	keys := make([]types.OrderingKey, len(ordered))
	for i, s := range ordered {
		keys[i] = s.Key
	}

	out := make(map[string]types.MetricSeries, len(metrics))
	var errs []error

	for _, metric := range metrics {
		if _, done := out[metric]; done {
			continue
		}

		s, err := project(ordered, keys, metric)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[metric] = s
	}

	return out, errors.Join(errs...)
}

func project(ordered []types.Snapshot, keys []types.OrderingKey, metric string) (types.MetricSeries, error) {
	values := make([]float64, len(ordered))
	for i, snap := range ordered {
		v, err := snap.Record.Value(metric)
		if err != nil {
			return types.MetricSeries{}, &types.InputError{
				Op:     "assemble",
				Path:   snap.Source,
				Key:    types.KeyRef(snap.Key),
				Metric: metric,
				Err:    err,
			}
		}
		values[i] = v
	}

	return types.MetricSeries{
		Metric: metric,
		Keys:   append([]types.OrderingKey(nil), keys...),
		Values: values,
	}, nil
}

// FailedMetrics lists the metrics named by the InputErrors joined in err
func FailedMetrics(err error) map[string]error {
	failed := make(map[string]error)
	if err == nil {
		return failed
	}

	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var ie *types.InputError
		if errors.As(e, &ie) && ie.Metric != "" {
			failed[ie.Metric] = e
		}
	}
	walk(err)
	return failed
}

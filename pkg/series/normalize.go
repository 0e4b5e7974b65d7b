package series

import "github.com/vjranagit/editmetrics/pkg/types"

// Normalize rescales a series into [0, 1] with min-max scaling. A series with
// no spread (constant, single point) maps to all ones so it stays visible
// above the axis baseline. An empty series yields an empty result.
// The input is not modified.
func Normalize(s types.MetricSeries) types.NormalizedSeries {
	out := types.NormalizedSeries{
		Metric: s.Metric,
		Keys:   make([]types.OrderingKey, len(s.Keys)),
		Values: make([]float64, len(s.Values)),
	}
	copy(out.Keys, s.Keys)
	if len(s.Values) == 0 {
		return out
	}

	lo, hi := s.Values[0], s.Values[0]
	for _, v := range s.Values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if lo == hi {
		out.Degenerate = true
		for i := range out.Values {
			out.Values[i] = 1
		}
		return out
	}

	span := hi - lo
	for i, v := range s.Values {
		switch v {
		case lo:
			out.Values[i] = 0
		case hi:
			out.Values[i] = 1
		default:
			out.Values[i] = (v - lo) / span
		}
	}
	return out
}

// NormalizeAll normalizes every series of a set
func NormalizeAll(set map[string]types.MetricSeries) map[string]types.NormalizedSeries {
	out := make(map[string]types.NormalizedSeries, len(set))
	for name, s := range set {
		out[name] = Normalize(s)
	}
	return out
}

package series

import (
	"fmt"
	"sort"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// Source is one named series entering a comparison
type Source struct {
	Name   string
	Series types.MetricSeries
}

// Align lines several series up on the union of their keys. Each source
// keeps its own values; keys it lacks are left empty rather than filled.
func Align(label string, sources ...Source) (*types.Comparison, error) {
	union := make(map[types.OrderingKey]struct{})
	names := make(map[string]bool, len(sources))

	for _, src := range sources {
		if names[src.Name] {
			return nil, fmt.Errorf("source %q listed twice", src.Name)
		}
		names[src.Name] = true

		if err := src.Series.Validate(); err != nil {
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		for _, k := range src.Series.Keys {
			union[k] = struct{}{}
		}
	}

	keys := make([]types.OrderingKey, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	cmp := &types.Comparison{
		Label:   label,
		Keys:    keys,
		Columns: make([]types.Column, len(sources)),
	}

	for c, src := range sources {
		col := types.Column{
			Source: src.Name,
			Values: make([]*float64, len(keys)),
		}
		// both key lists are sorted, so one merge pass suffices
		j := 0
		for i, k := range keys {
			if j < len(src.Series.Keys) && src.Series.Keys[j] == k {
				v := src.Series.Values[j]
				col.Values[i] = &v
				j++
			}
		}
		cmp.Columns[c] = col
	}

	return cmp, nil
}

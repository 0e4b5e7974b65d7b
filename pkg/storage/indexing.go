package storage

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Label names understood by the index
const (
	LabelAxis    = "axis"
	LabelVariant = "variant"
	LabelMetric  = "__name__"
)

// Labels identify one archived series independently of the run it came from
type Labels struct {
	Axis    string `json:"axis"`
	Variant string `json:"variant"`
	Metric  string `json:"metric"`
}

func (l Labels) asMap() map[string]string {
	return map[string]string{
		LabelAxis:    l.Axis,
		LabelVariant: l.Variant,
		LabelMetric:  l.Metric,
	}
}

// Fingerprint hashes the labels into a series ID
func (l Labels) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(l.Axis)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(l.Variant)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(l.Metric)
	return d.Sum64()
}

// Index manages the label index of archived series
type Index struct {
	mu sync.RWMutex
	// fingerprint -> labels
	series map[uint64]Labels
	// label name -> label value -> fingerprints
	labelIndex map[string]map[string][]uint64
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		series:     make(map[uint64]Labels),
		labelIndex: make(map[string]map[string][]uint64),
	}
}

// AddSeries adds a series to the index. It reports whether the series is new.
func (idx *Index) AddSeries(l Labels) (uint64, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fp := l.Fingerprint()
	if _, exists := idx.series[fp]; exists {
		return fp, false
	}
	idx.series[fp] = l

	for name, value := range l.asMap() {
		if idx.labelIndex[name] == nil {
			idx.labelIndex[name] = make(map[string][]uint64)
		}
		idx.labelIndex[name][value] = append(idx.labelIndex[name][value], fp)
	}

	return fp, true
}

// GetSeries retrieves series labels by fingerprint
func (idx *Index) GetSeries(fp uint64) (Labels, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	l, ok := idx.series[fp]
	return l, ok
}

// FindSeries returns the fingerprints matching every selector, sorted.
// Empty selector values are ignored; no selectors match everything.
func (idx *Index) FindSeries(selectors map[string]string) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result []uint64
	first := true

	for name, value := range selectors {
		if value == "" {
			continue
		}

		ids := idx.labelIndex[name][value]
		if len(ids) == 0 {
			return nil
		}

		if first {
			result = append([]uint64(nil), ids...)
			sortIDs(result)
			first = false
		} else {
			result = intersect(result, ids)
		}

		if len(result) == 0 {
			return nil
		}
	}

	if first {
		result = make([]uint64, 0, len(idx.series))
		for id := range idx.series {
			result = append(result, id)
		}
		sortIDs(result)
	}

	return result
}

// SeriesCount returns the number of indexed series
func (idx *Index) SeriesCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.series)
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// intersect keeps the IDs of sorted a that also appear in b
func intersect(a, b []uint64) []uint64 {
	sorted := append([]uint64(nil), b...)
	sortIDs(sorted)

	result := make([]uint64, 0)
	i, j := 0, 0
	for i < len(a) && j < len(sorted) {
		switch {
		case a[i] < sorted[j]:
			i++
		case a[i] > sorted[j]:
			j++
		default:
			result = append(result, a[i])
			i++
			j++
		}
	}
	return result
}

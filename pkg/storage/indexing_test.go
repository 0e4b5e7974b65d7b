package storage

import "testing"

func TestIndexAddSeries(t *testing.T) {
	idx := NewIndex()

	l := Labels{Axis: "commit", Variant: "syncordian", Metric: "insert_valid_counter"}

	id, added := idx.AddSeries(l)
	if !added {
		t.Error("Expected first insert to add the series")
	}
	if id != l.Fingerprint() {
		t.Errorf("Expected fingerprint %d, got %d", l.Fingerprint(), id)
	}

	id2, added := idx.AddSeries(l)
	if added {
		t.Error("Expected second insert to be a no-op")
	}
	if id != id2 {
		t.Errorf("Expected same ID for duplicate series: %d != %d", id, id2)
	}

	if idx.SeriesCount() != 1 {
		t.Errorf("Expected 1 series, got %d", idx.SeriesCount())
	}
}

func TestIndexFindSeries(t *testing.T) {
	idx := NewIndex()

	all := []Labels{
		{Axis: "commit", Variant: "syncordian", Metric: "insert_valid_counter"},
		{Axis: "commit", Variant: "syncordian", Metric: "delete_valid_counter"},
		{Axis: "commit", Variant: "logoot", Metric: "insert_valid_counter"},
		{Axis: "byzantine_nodes", Variant: "syncordian", Metric: "insert_valid_counter"},
	}
	for _, l := range all {
		idx.AddSeries(l)
	}

	tests := []struct {
		name      string
		selectors map[string]string
		want      int
	}{
		{"everything", nil, 4},
		{"empty values ignored", map[string]string{LabelAxis: "", LabelMetric: ""}, 4},
		{"by axis", map[string]string{LabelAxis: "commit"}, 3},
		{"by metric", map[string]string{LabelMetric: "insert_valid_counter"}, 3},
		{"axis and variant", map[string]string{LabelAxis: "commit", LabelVariant: "syncordian"}, 2},
		{"all three", map[string]string{LabelAxis: "commit", LabelVariant: "logoot", LabelMetric: "insert_valid_counter"}, 1},
		{"unknown value", map[string]string{LabelAxis: "edit"}, 0},
		{"disjoint", map[string]string{LabelAxis: "byzantine_nodes", LabelVariant: "logoot"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := idx.FindSeries(tt.selectors)
			if len(got) != tt.want {
				t.Errorf("Expected %d series, got %d", tt.want, len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Errorf("Expected sorted fingerprints, got %v", got)
				}
			}
		})
	}
}

func TestFingerprintSeparatesFields(t *testing.T) {
	a := Labels{Axis: "ab", Variant: "c", Metric: "m"}
	b := Labels{Axis: "a", Variant: "bc", Metric: "m"}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Expected different fingerprints for shifted label boundaries")
	}
}

func BenchmarkIndexFindSeries(b *testing.B) {
	idx := NewIndex()
	for i := 0; i < 1000; i++ {
		idx.AddSeries(Labels{Axis: "commit", Variant: string(rune('a' + i%26)), Metric: string(rune('A' + i%20))})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.FindSeries(map[string]string{LabelAxis: "commit", LabelVariant: "c"})
	}
}

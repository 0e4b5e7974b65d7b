package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/editmetrics/pkg/types"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		axis   Axis
		file   string
		want   types.OrderingKey
		wantOK bool
	}{
		{"commit", Commit, "commit_42_foo.json", 42, true},
		{"commit without key", Commit, "nocommitinfo.json", 0, false},
		{"commit needs trailing underscore", Commit, "commit_42.json", 0, false},
		{"commit first match wins", Commit, "commit_3_commit_9_x.json", 3, true},
		{"commit zero", Commit, "commit_0_a.json", 0, true},
		{"commit with directory", Commit, "/tmp/commit_7_/commit_8_peer.json", 8, true},
		{"byzantine", Byzantine, "run_byzantine_nodes_12_peers_40.json", 12, true},
		{"byzantine no digits", Byzantine, "byzantine_nodes__x.json", 0, false},
		{"edit", Edit, "edit_105.json", 105, true},
		{"edit wrong extension", Edit, "edit_105.md", 0, false},
		{"overflow is absent", Commit, "commit_99999999999999999999999_x.json", 0, false},
		{"empty", Edit, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.axis.Extract(tt.file)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadPatterns(t *testing.T) {
	_, err := New("x", "X", `x_\d+`, ".json")
	assert.Error(t, err, "pattern without capture group")

	_, err = New("x", "X", `(\d+)_(\d+)`, ".json")
	assert.Error(t, err, "pattern with two capture groups")

	_, err = New("x", "X", `(`, ".json")
	assert.Error(t, err, "invalid regexp")

	_, err = New("", "X", `(\d+)`, ".json")
	assert.Error(t, err, "missing name")
}

func TestAccepts(t *testing.T) {
	a, err := New("run", "Run", `run_(\d+)`, "json")
	require.NoError(t, err)

	assert.Equal(t, ".json", a.Extension)
	assert.True(t, a.Accepts("run_1.json"))
	assert.False(t, a.Accepts("run_1.JSON"))
	assert.False(t, a.Accepts("run_1.md"))
	assert.False(t, a.Accepts("notes"))
}

func TestLookupAndWithMetrics(t *testing.T) {
	a, ok := Lookup("byzantine_nodes")
	require.True(t, ok)
	assert.Len(t, a.Metrics, 8)

	narrowed := a.WithMetrics("insert_valid_counter")
	assert.Equal(t, []string{"insert_valid_counter"}, narrowed.Metrics)
	assert.Len(t, Byzantine.Metrics, 8, "WithMetrics must not alias the original")

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}

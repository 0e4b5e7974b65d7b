package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/pkg/axis"
	"github.com/vjranagit/editmetrics/pkg/pipeline"
	"github.com/vjranagit/editmetrics/pkg/storage"
	"github.com/vjranagit/editmetrics/pkg/types"
)

type fixture struct {
	root    string
	server  *httptest.Server
	cache   *storage.ResultCache
	archive storage.Archive
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	root := t.TempDir()

	commits := filepath.Join(root, "commits")
	writeFile(t, commits, "commit_1_a.json", `{"insert_valid_counter": 10}`)
	writeFile(t, commits, "commit_2_a.json", `{"insert_valid_counter": 20}`)
	writeFile(t, commits, "commit_3_a.json", `{"insert_valid_counter": 10}`)

	dupes := filepath.Join(root, "dupes")
	writeFile(t, dupes, "edit_1.json", `{"heap_size": 1}`)
	writeFile(t, dupes, "edit_01.json", `{"heap_size": 2}`)

	writeFile(t, root, "README.md", "a\nb\n")
	docs := filepath.Join(root, "docs")
	writeFile(t, docs, "one.md", "a\nb\n")
	writeFile(t, docs, "two.md", "b\na\n")

	reg := prometheus.NewRegistry()
	var archive storage.Archive
	if withArchive {
		var err error
		archive, err = storage.NewArchive(&storage.Config{InMemory: true, CompressionLevel: 1})
		require.NoError(t, err)
		t.Cleanup(func() { archive.Close() })
	}

	runner := pipeline.New(zap.NewNop(), pipeline.Options{
		Archive: archive,
		Metrics: pipeline.NewMetrics(reg),
	})
	cache := storage.NewResultCache(8, time.Minute)

	srv := NewServer(zap.NewNop(), runner, Options{
		Axes: []pipeline.AxisRequest{
			{Axis: axis.Commit.WithMetrics("insert_valid_counter"), Dir: commits},
			{Axis: axis.Byzantine, Dir: filepath.Join(root, "absent")},
			{Axis: axis.Edit, Dir: dupes},
		},
		Reference: filepath.Join(root, "README.md"),
		Documents: docs,
		Heap: pipeline.HeapRequest{
			Variants: []pipeline.VariantDir{{Name: "fugue", Dir: filepath.Join(root, "absent")}},
		},
		Archive:  archive,
		Cache:    cache,
		Gatherer: reg,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{root: root, server: ts, cache: cache, archive: archive}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSeries(t *testing.T) {
	f := newFixture(t, false)

	var res types.AxisResult
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/series?axis=commit", &res))
	assert.Equal(t, "Commit Number", res.Label)
	assert.Equal(t, []float64{0, 1, 0}, res.Normalized["insert_valid_counter"].Values)

	assert.Equal(t, 1, f.cache.Stats().Size)
	f.get(t, "/api/v1/series?axis=commit", &res)
	assert.Equal(t, uint64(1), f.cache.Stats().Hits)

	var raw types.AxisResult
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/series?axis=commit&normalize=false", &raw))
	assert.Nil(t, raw.Normalized)
	assert.Equal(t, []float64{10, 20, 10}, raw.Series["insert_valid_counter"].Values)
}

func TestSeriesErrors(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/series", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/series?axis=nope", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/series?axis=byzantine_nodes", nil))

	var body map[string]any
	assert.Equal(t, http.StatusUnprocessableEntity, f.get(t, "/api/v1/series?axis=edit", &body))
	assert.Contains(t, body["error"], "duplicate")
	assert.Equal(t, 0, f.cache.Stats().Size)

	resp, err := http.Post(f.server.URL+"/api/v1/series?axis=commit", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInterleavingEndpoint(t *testing.T) {
	f := newFixture(t, false)

	var body map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/interleaving", &body))
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, 1.0, body["average"])
	assert.Equal(t, map[string]any{"one.md": 0.0, "two.md": 2.0}, body["documents"])
}

func TestHeapEndpointWithoutSources(t *testing.T) {
	f := newFixture(t, false)

	var cmp types.Comparison
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/heap", &cmp))
	assert.Empty(t, cmp.Keys)
	assert.Empty(t, cmp.Columns)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, true)

	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/series?axis=commit", nil))

	var runs []storage.Run
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "commit", runs[0].Axis)

	var found []storage.StoredSeries
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/history?axis=commit&metric=insert_valid_counter", &found))
	require.Len(t, found, 1)
	assert.Equal(t, []float64{10, 20, 10}, found[0].Series.Values)

	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/history?axis=byzantine_nodes", &found))
	assert.Empty(t, found)

	var health map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/health", &health))
	assert.Equal(t, true, health["archive"])
	assert.Equal(t, 1.0, health["archived_series"])
}

func TestHistoryWithoutArchive(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/runs", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)

	var health map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/health", &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "cache")
	assert.NotContains(t, health, "archived_series")

	f.get(t, "/api/v1/series?axis=commit", nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `editmetrics_axis_runs_total{axis="commit",status="ok"} 1`))
}

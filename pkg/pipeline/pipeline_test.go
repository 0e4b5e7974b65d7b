package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/pkg/axis"
	"github.com/vjranagit/editmetrics/pkg/storage"
	"github.com/vjranagit/editmetrics/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started at init by dependencies of badger
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newRunner(t *testing.T, opts Options) (*Runner, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts.Metrics = NewMetrics(reg)
	return New(zap.NewNop(), opts), reg
}

func TestRunAxisEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "commit_1_a.json", `{"insert_valid_counter": 10}`)
	writeFile(t, dir, "commit_2_a.json", `{"insert_valid_counter": 20}`)
	writeFile(t, dir, "commit_3_a.json", `{"insert_valid_counter": 10}`)

	r, reg := newRunner(t, Options{})
	res, err := r.RunAxis(context.Background(), AxisRequest{
		Axis: axis.Commit.WithMetrics("insert_valid_counter"),
		Dir:  dir,
	})
	require.NoError(t, err)

	assert.Equal(t, "Commit Number", res.Label)
	assert.Equal(t, []types.OrderingKey{1, 2, 3}, res.Keys)
	assert.Equal(t, []float64{10, 20, 10}, res.Series["insert_valid_counter"].Values)
	assert.Equal(t, []float64{0, 1, 0}, res.Normalized["insert_valid_counter"].Values)
	assert.Empty(t, res.Failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.AxisRuns.WithLabelValues("commit", StatusOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.metrics.SnapshotsLoaded.WithLabelValues("commit")))

	n, err := testutil.GatherAndCount(reg, "editmetrics_axis_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunAxisPartialMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "commit_1_a.json", `{"insert_valid_counter": 1, "delete_valid_counter": 4}`)
	writeFile(t, dir, "commit_2_a.json", `{"insert_valid_counter": 2}`)

	r, _ := newRunner(t, Options{})
	res, err := r.RunAxis(context.Background(), AxisRequest{
		Axis: axis.Commit.WithMetrics("insert_valid_counter", "delete_valid_counter"),
		Dir:  dir,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMissingField)

	require.NotNil(t, res)
	assert.Contains(t, res.Series, "insert_valid_counter")
	assert.NotContains(t, res.Series, "delete_valid_counter")
	assert.Contains(t, res.Failed, "delete_valid_counter")
	assert.Equal(t, StatusPartial, status(res, err))
}

func TestRunAxisMissingDirectory(t *testing.T) {
	r, _ := newRunner(t, Options{})
	res, err := r.RunAxis(context.Background(), AxisRequest{
		Axis: axis.Commit,
		Dir:  filepath.Join(t.TempDir(), "absent"),
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.AxisRuns.WithLabelValues("commit", StatusNotFound)))
}

func TestRunAxisSkipMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "edit_1.json", `{"heap_size": 100}`)
	writeFile(t, dir, "edit_2.json", `{"heap_size": `)
	writeFile(t, dir, "edit_3.json", `{"heap_size": 300}`)

	strict, _ := newRunner(t, Options{})
	_, err := strict.RunAxis(context.Background(), AxisRequest{Axis: axis.Edit, Dir: dir})
	assert.ErrorIs(t, err, types.ErrMalformedInput)

	lenient, _ := newRunner(t, Options{SkipMalformed: true})
	res, err := lenient.RunAxis(context.Background(), AxisRequest{Axis: axis.Edit, Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, []types.OrderingKey{1, 3}, res.Keys)
	assert.Len(t, res.Skipped, 1)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	commits := filepath.Join(root, "commits")
	writeFile(t, commits, "commit_1_a.json", `{"insert_valid_counter": 5}`)
	writeFile(t, commits, "commit_2_a.json", `{"insert_valid_counter": 7}`)

	r, _ := newRunner(t, Options{Workers: 2})
	outcomes := r.RunAll(context.Background(), []AxisRequest{
		{Axis: axis.Byzantine, Dir: filepath.Join(root, "byzantine")},
		{Axis: axis.Commit.WithMetrics("insert_valid_counter"), Dir: commits},
	})
	require.Len(t, outcomes, 2)

	assert.Equal(t, StatusNotFound, outcomes[0].Status())
	assert.Nil(t, outcomes[0].Result)

	assert.Equal(t, StatusOK, outcomes[1].Status())
	require.NotNil(t, outcomes[1].Result)
	assert.Equal(t, []float64{0, 1}, outcomes[1].Result.Normalized["insert_valid_counter"].Values)
}

func TestRunAllBoundsWorkers(t *testing.T) {
	r, _ := newRunner(t, Options{})
	assert.Equal(t, runtime.GOMAXPROCS(0), r.opts.Workers)

	root := t.TempDir()
	var reqs []AxisRequest
	for i := 0; i < 3*r.opts.Workers; i++ {
		dir := filepath.Join(root, fmt.Sprintf("axis%d", i))
		writeFile(t, dir, "edit_1.json", `{"heap_size": 1}`)
		reqs = append(reqs, AxisRequest{Axis: axis.Edit, Dir: dir})
	}

	outcomes := r.RunAll(context.Background(), reqs)
	require.Len(t, outcomes, len(reqs))
	for i, o := range outcomes {
		assert.Equal(t, StatusOK, o.Status())
		assert.Equal(t, reqs[i].Dir, o.Request.Dir)
	}

	explicit, _ := newRunner(t, Options{Workers: 3})
	assert.Equal(t, 3, explicit.opts.Workers)
}

func TestRunAxisArchivesResult(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "edit_1.json", `{"heap_size": 100}`)
	writeFile(t, dir, "edit_2.json", `{"heap_size": 200}`)

	archive, err := storage.NewArchive(&storage.Config{InMemory: true, CompressionLevel: 1})
	require.NoError(t, err)
	defer archive.Close()

	r, _ := newRunner(t, Options{Archive: archive})
	_, err = r.RunAxis(context.Background(), AxisRequest{Axis: axis.Edit, Dir: dir, Variant: "skiplist"})
	require.NoError(t, err)

	stored, err := archive.Query(context.Background(), storage.SeriesQuery{Variant: "skiplist"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []float64{100, 200}, stored[0].Series.Values)
}

func TestInterleaving(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "a\nb\nc\n")
	docs := filepath.Join(root, "docs")
	writeFile(t, docs, "same.md", "a\nb\nc\n")
	writeFile(t, docs, "moved.md", "b\na\nc\n")
	writeFile(t, docs, "extra.md", "a\nb\nc\nd\n")

	r, reg := newRunner(t, Options{Workers: 2})
	report, err := r.Interleaving(context.Background(), filepath.Join(root, "README.md"), docs)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"same.md": 0, "moved.md": 2, "extra.md": 1}, report.Entries)
	assert.Equal(t, 3, report.Count)
	assert.InDelta(t, 1.0, report.Mean, 1e-9)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.metrics.Documents))

	n, err := testutil.GatherAndCount(reg, "editmetrics_interleaving_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInterleavingMissingReference(t *testing.T) {
	r, _ := newRunner(t, Options{})
	_, err := r.Interleaving(context.Background(), filepath.Join(t.TempDir(), "README.md"), t.TempDir())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestHeapAlignsVariants(t *testing.T) {
	root := t.TempDir()
	fast := filepath.Join(root, "fast")
	writeFile(t, fast, "edit_1.json", `{"heap_size": 10}`)
	writeFile(t, fast, "edit_3.json", `{"heap_size": 30}`)
	writeFile(t, root, "commit_sizes.json", `[{"edit_number": 2, "heap_size": 25}, {"edit_number": 1, "heap_size": 12}]`)

	r, _ := newRunner(t, Options{})
	cmp, err := r.Heap(context.Background(), HeapRequest{
		Variants: []VariantDir{
			{Name: "fast", Dir: fast},
			{Name: "missing", Dir: filepath.Join(root, "missing")},
		},
		CommitSizes:   filepath.Join(root, "commit_sizes.json"),
		ReferenceName: "Original README",
	})
	require.NoError(t, err)

	assert.Equal(t, "Edit Number", cmp.Label)
	assert.Equal(t, []types.OrderingKey{1, 2, 3}, cmp.Keys)
	require.Len(t, cmp.Columns, 2)
	assert.Equal(t, "fast", cmp.Columns[0].Source)
	assert.Nil(t, cmp.Columns[0].Values[1])
	assert.Equal(t, 30.0, *cmp.Columns[0].Values[2])

	assert.Equal(t, "Original README", cmp.Reference)
	assert.True(t, cmp.Marked(0))
	assert.True(t, cmp.Marked(1))
	assert.False(t, cmp.Marked(2))
}

func TestHeapWithoutCommitSizes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "edit_2.json", `{"heap_size": 2048}`)

	r, _ := newRunner(t, Options{})
	cmp, err := r.Heap(context.Background(), HeapRequest{
		Variants:    []VariantDir{{Name: "v", Dir: root}},
		CommitSizes: filepath.Join(root, "absent.json"),
	})
	require.NoError(t, err)
	assert.Empty(t, cmp.Reference)
	assert.False(t, cmp.Marked(0))
	assert.Len(t, cmp.Columns, 1)
}

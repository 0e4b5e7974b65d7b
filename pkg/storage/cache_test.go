package storage

import (
	"testing"
	"time"

	"github.com/vjranagit/editmetrics/pkg/types"
)

func testKey(axis string) ResultKey {
	return ResultKey{Axis: axis, Dir: "debug/metadata/" + axis, Metrics: []string{"insert_valid_counter"}}
}

func TestResultCache(t *testing.T) {
	cache := NewResultCache(100, time.Minute)

	if _, ok := cache.Get(testKey("commit")); ok {
		t.Error("Expected cache miss, got hit")
	}

	result := &types.AxisResult{Axis: "commit", Keys: []types.OrderingKey{1, 2}}
	cache.Put(testKey("commit"), result)

	got, ok := cache.Get(testKey("commit"))
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}
	if got != result {
		t.Error("Expected the stored result back")
	}

	// Different metric sets are different entries
	other := testKey("commit")
	other.Metrics = []string{"delete_valid_counter"}
	if _, ok := cache.Get(other); ok {
		t.Error("Expected miss for a different metric set")
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("Expected 1 hit and 2 misses, got %d/%d", stats.Hits, stats.Misses)
	}
}

func TestResultCacheTTL(t *testing.T) {
	cache := NewResultCache(10, time.Minute)
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	cache.Put(testKey("edit"), &types.AxisResult{Axis: "edit"})

	now = now.Add(30 * time.Second)
	if _, ok := cache.Get(testKey("edit")); !ok {
		t.Error("Expected hit before TTL")
	}

	now = now.Add(2 * time.Minute)
	if stats := cache.Stats(); stats.Expired != 1 {
		t.Errorf("Expected 1 expired entry, got %d", stats.Expired)
	}
	if _, ok := cache.Get(testKey("edit")); ok {
		t.Error("Expected miss after TTL")
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Expected expired entry to be removed, size=%d", size)
	}
}

func TestResultCacheLRUEviction(t *testing.T) {
	cache := NewResultCache(2, time.Minute)

	cache.Put(testKey("commit"), &types.AxisResult{Axis: "commit"})
	cache.Put(testKey("byzantine_nodes"), &types.AxisResult{Axis: "byzantine_nodes"})

	// Touch commit so byzantine_nodes becomes the oldest
	cache.Get(testKey("commit"))
	cache.Put(testKey("edit"), &types.AxisResult{Axis: "edit"})

	if size := cache.Stats().Size; size != 2 {
		t.Errorf("Expected size 2, got %d", size)
	}
	if _, ok := cache.Get(testKey("byzantine_nodes")); ok {
		t.Error("Expected least recently used entry to be evicted")
	}
	if _, ok := cache.Get(testKey("commit")); !ok {
		t.Error("Expected recently used entry to survive")
	}
}

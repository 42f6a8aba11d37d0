package record

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/servhub/internal/store"
)

// countingStore wraps the memory store to observe persistence writes.
type countingStore struct {
	*store.MemoryStore
	mu   sync.Mutex
	sets int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (c *countingStore) Set(ctx context.Context, ns, key string, v json.RawMessage) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.MemoryStore.Set(ctx, ns, key, v)
}

func (c *countingStore) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func discoveredAlpha() ServerRecord {
	return ServerRecord{
		Key:     Key("alpha", "1.0.0"),
		Name:    "alpha",
		Title:   "Alpha",
		Version: "1.0.0",
		Type:    TypeLocal,
		Settings: []SettingDescriptor{
			{Name: "port", Type: "number", Default: 9001},
		},
		Setting:   map[string]any{"port": 9001},
		LocalPath: "/srv/alpha",
	}
}

func TestMergeInsertsNewRecordAtFront(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	inserted, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(inserted) != 1 || inserted[0] != Key("alpha", "1.0.0") {
		t.Fatalf("inserted = %v", inserted)
	}

	beta := ServerRecord{Key: Key("beta", "1.0.0"), Name: "beta", Version: "1.0.0", Type: TypeLocal}
	if _, err := s.Merge(ctx, []ServerRecord{beta}); err != nil {
		t.Fatalf("merge beta: %v", err)
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name != "beta" {
		t.Fatalf("newest record is %q, want beta at front", list[0].Name)
	}
	if kv.setCount() != 2 {
		t.Fatalf("persist writes = %d, want 2", kv.setCount())
	}
}

func TestMergeBackfillsSettingsPreservingValues(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	// Seed a record without a settings schema but with user values.
	old := discoveredAlpha()
	old.Settings = nil
	old.Setting = map[string]any{"port": 4242}
	if _, err := s.Merge(ctx, []ServerRecord{old}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := kv.setCount()

	inserted, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(inserted) != 0 {
		t.Fatalf("backfill produced insertions: %v", inserted)
	}

	rec, ok := s.Get(Key("alpha", "1.0.0"))
	if !ok {
		t.Fatal("record missing")
	}
	if len(rec.Settings) != 1 || rec.Settings[0].Name != "port" {
		t.Fatalf("settings not backfilled: %+v", rec.Settings)
	}
	if rec.Setting["port"] != 4242 {
		t.Fatalf("user setting overwritten: %v", rec.Setting["port"])
	}
	if got := kv.setCount() - before; got != 1 {
		t.Fatalf("backfill persisted %d times, want exactly 1", got)
	}
}

func TestMergeNoChangeNoPersist(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := kv.setCount()
	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("re-merge: %v", err)
	}
	if kv.setCount() != before {
		t.Fatal("unchanged merge triggered a persistence write")
	}
}

func TestUpdateSetting(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := s.UpdateSetting(ctx, Key("alpha", "1.0.0"), map[string]any{
		"port":    9100,
		"verbose": true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, _ := s.Get(Key("alpha", "1.0.0"))
	if rec.Setting["port"] != 9100 {
		t.Fatalf("port = %v, want 9100", rec.Setting["port"])
	}
	if rec.Setting["verbose"] != true {
		t.Fatal("added key missing")
	}
}

func TestUpdateSettingUnknownKeyIsNoOp(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	before := kv.setCount()
	if err := s.UpdateSetting(ctx, "ghost@1.0.0", map[string]any{"x": 1}); err != nil {
		t.Fatalf("update unknown key: %v", err)
	}
	if kv.setCount() != before {
		t.Fatal("no-op update persisted")
	}
}

func TestSyncNeverWritesTransientFields(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	raw, err := kv.Get(ctx, Namespace, StorageKey, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("decode persisted records: %v", err)
	}
	for _, e := range entries {
		if _, ok := e["status"]; ok {
			t.Fatal("persisted record carries a status field")
		}
		if _, ok := e["runtime"]; ok {
			t.Fatal("persisted record carries a runtime field")
		}
	}
}

// gateStore blocks inside Set while the gate is up, exposing whether a
// second persistence write can start before the first finishes.
type gateStore struct {
	*store.MemoryStore
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGateStore() *gateStore {
	return &gateStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gateStore) Set(ctx context.Context, ns, key string, v json.RawMessage) error {
	if g.gate.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.MemoryStore.Set(ctx, ns, key, v)
}

func TestSyncSerializesConcurrentWrites(t *testing.T) {
	kv := newGateStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	kv.gate.Store(true)

	done := make(chan error, 2)
	go func() {
		done <- s.UpdateSetting(ctx, Key("alpha", "1.0.0"), map[string]any{"port": 9100})
	}()
	<-kv.entered

	go func() {
		done <- s.UpdateSetting(ctx, Key("alpha", "1.0.0"), map[string]any{"host": "127.0.0.1"})
	}()
	// The second sync must wait until the first write completes.
	select {
	case <-kv.entered:
		t.Fatal("second persistence write started while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	kv.release <- struct{}{}
	<-kv.entered
	kv.release <- struct{}{}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	kv.gate.Store(false)

	// The last write to reach storage carries both mutations.
	raw, err := kv.Get(ctx, Namespace, StorageKey, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var recs []map[string]any
	if err := json.Unmarshal(raw, &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	setting, _ := recs[0]["setting"].(map[string]any)
	if setting["port"] != float64(9100) || setting["host"] != "127.0.0.1" {
		t.Fatalf("persisted snapshot stale: %v", setting)
	}
}

func TestRemoveUnknownKeyNoPersist(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := kv.setCount()
	if err := s.Remove(ctx, "ghost@1.0.0"); err != nil {
		t.Fatalf("remove unknown key: %v", err)
	}
	if kv.setCount() != before {
		t.Fatal("no-op removal triggered a persistence write")
	}
	if len(s.List()) != 1 {
		t.Fatal("record lost by no-op removal")
	}
}

func TestRemoveAndReload(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Remove(ctx, Key("alpha", "1.0.0")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.Get(Key("alpha", "1.0.0")); ok {
		t.Fatal("record still present after remove")
	}

	// A fresh store over the same backend sees the removal.
	s2 := NewStore(kv, nil)
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s2.List()) != 0 {
		t.Fatalf("reloaded list = %v, want empty", s2.List())
	}
}

func TestAtMostOneRecordPerName(t *testing.T) {
	kv := newCountingStore()
	s := NewStore(kv, nil)
	ctx := context.Background()

	// Same name with a different version must not produce a second record.
	v2 := discoveredAlpha()
	v2.Version = "2.0.0"
	v2.Key = Key("alpha", "2.0.0")

	if _, err := s.Merge(ctx, []ServerRecord{discoveredAlpha()}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Merge(ctx, []ServerRecord{v2}); err != nil {
		t.Fatalf("merge v2: %v", err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("records for one name = %d, want 1", got)
	}
}

package record

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/servhub/internal/store"
)

const (
	// Storage coordinates for the persisted record list.
	Namespace  = "server"
	StorageKey = "records"
)

// Store holds the ordered list of persisted ServerRecords and keeps it in
// sync with the key-value persistence backend. The list is newest-first:
// freshly discovered instances are inserted at the front.
type Store struct {
	mu      sync.Mutex
	syncMu  sync.Mutex
	records []*ServerRecord
	kv      store.Store
	logger  *slog.Logger
}

func NewStore(kv store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load replaces the in-memory list with the persisted one. Called once at
// startup before any discovery merge.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, Namespace, StorageKey, json.RawMessage("[]"))
	if err != nil {
		return fmt.Errorf("failed to load server records: %w", err)
	}
	var recs []*ServerRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return fmt.Errorf("failed to decode server records: %w", err)
	}
	s.mu.Lock()
	s.records = recs
	s.mu.Unlock()
	return nil
}

// List returns a snapshot copy of all records, newest first.
func (s *Store) List() []ServerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

// Get returns a copy of the record with the given instance key.
func (s *Store) Get(key string) (ServerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Key == key {
			return *r, true
		}
	}
	return ServerRecord{}, false
}

// Merge folds discovered local instances into the record list:
//   - an instance whose Name is unseen is inserted at the front;
//   - an existing record lacking a Settings schema is backfilled from the
//     discovered one, preserving the user's current Setting values.
//
// The list is persisted once, and only if at least one insertion or
// backfill happened. Returned keys are those of newly inserted records.
func (s *Store) Merge(ctx context.Context, discovered []ServerRecord) ([]string, error) {
	s.mu.Lock()
	var inserted []string
	changed := false
	for i := range discovered {
		d := discovered[i]
		existing := s.findByNameLocked(d.Name)
		if existing == nil {
			rec := d
			s.records = append([]*ServerRecord{&rec}, s.records...)
			inserted = append(inserted, rec.Key)
			changed = true
			continue
		}
		if len(existing.Settings) == 0 && len(d.Settings) > 0 {
			existing.Settings = d.Settings
			changed = true
		}
	}
	s.mu.Unlock()

	if !changed {
		return nil, nil
	}
	if err := s.Sync(ctx); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// UpdateSetting shallow-merges partial into the record's current Setting
// map and persists. Unknown keys are a silent no-op.
func (s *Store) UpdateSetting(ctx context.Context, key string, partial map[string]any) error {
	s.mu.Lock()
	var target *ServerRecord
	for _, r := range s.records {
		if r.Key == key {
			target = r
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		s.logger.Debug("update setting for unknown server", "key", key)
		return nil
	}
	if target.Setting == nil {
		target.Setting = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		target.Setting[k] = v
	}
	s.mu.Unlock()
	return s.Sync(ctx)
}

// Remove deletes the record with the given key and persists the list.
// Removing an absent key is a no-op without a persistence write.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	removed := false
	for i, r := range s.records {
		if r.Key == key {
			s.records = append(s.records[:i], s.records[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if !removed {
		return nil
	}
	return s.Sync(ctx)
}

// Sync writes the whole record list to the persistence backend. Records
// carry no transient fields, so the snapshot is storage-safe by
// construction. syncMu is held across marshal and write: concurrent syncs
// serialize, and the last write to reach storage is the latest snapshot.
func (s *Store) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	recs := s.records
	if recs == nil {
		recs = []*ServerRecord{}
	}
	data, err := json.Marshal(recs)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode server records: %w", err)
	}
	if err := s.kv.Set(ctx, Namespace, StorageKey, data); err != nil {
		return fmt.Errorf("failed to persist server records: %w", err)
	}
	return nil
}

func (s *Store) findByNameLocked(name string) *ServerRecord {
	for _, r := range s.records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

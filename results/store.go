// Package results persists published top-N result sets and serves them to
// readers.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/topn"
)

// Snapshot is the latest result set stored under a key.
type Snapshot struct {
	Key       string         `json:"key"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
	Entries   topn.ResultSet `json:"entries"`
}

// Reader returns the current snapshot for a key, or an error matching
// errors.ErrNotFound if nothing was ever stored under it.
type Reader interface {
	Get(ctx context.Context, key string) (*Snapshot, error)
}

// Store is the SQLite-backed result sink. Each Put replaces the previous
// result set under the key in one statement, so readers see either the old
// set or the new one.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

var (
	_ topn.Sink = (*Store)(nil)
	_ Reader    = (*Store)(nil)
)

// NewStore creates a result store on a migrated database.
func NewStore(db *sql.DB, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = logger.Logger.Named("results")
	}
	return &Store{db: db, logger: log, now: time.Now}
}

// Put stores rs under key, bumping the key's version.
func (s *Store) Put(ctx context.Context, key string, rs topn.ResultSet) error {
	value, err := json.Marshal(rs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result set")
	}

	var version int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO kv_store (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv_store.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`,
		key, string(value), s.now().UTC().Format(time.RFC3339Nano),
	).Scan(&version)
	if err != nil {
		return errors.Wrapf(err, "failed to store %s", key)
	}

	s.logger.Debugw("Stored result set",
		logger.FieldResultKey, key,
		logger.FieldCount, len(rs),
		"version", version,
	)
	return nil
}

// Get returns the snapshot stored under key.
func (s *Store) Get(ctx context.Context, key string) (*Snapshot, error) {
	var (
		value   string
		updated string
		snap    = Snapshot{Key: key}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version, updated_at FROM kv_store WHERE key = ?`, key,
	).Scan(&value, &snap.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no result stored under %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}

	if err := json.Unmarshal([]byte(value), &snap.Entries); err != nil {
		return nil, errors.Wrapf(err, "corrupt result set under %s", key)
	}
	if snap.Entries == nil {
		snap.Entries = topn.ResultSet{}
	}
	if snap.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, errors.Wrapf(err, "bad updated_at under %s", key)
	}
	return &snap, nil
}

// MemoryStore keeps snapshots in process. It serves one-off runs that do
// not need a database.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	now   func() time.Time
}

var (
	_ topn.Sink = (*MemoryStore)(nil)
	_ Reader    = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, key string, rs topn.ResultSet) error {
	entries := make(topn.ResultSet, len(rs))
	copy(entries, rs)

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.snaps[key]
	m.snaps[key] = Snapshot{
		Key:       key,
		Version:   prev.Version + 1,
		UpdatedAt: m.now().UTC(),
		Entries:   entries,
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[key]
	if !ok {
		return nil, errors.NewNotFoundError("no result stored under %s", key)
	}
	snap.Entries = append(topn.ResultSet{}, snap.Entries...)
	return &snap, nil
}

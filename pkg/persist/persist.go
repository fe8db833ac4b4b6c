// Package persist keeps a durable, versioned snapshot of the scene graph
// in an embedded BadgerDB store so the scene survives process restarts.
//
// Persistence is deliberately non-fatal: a missing or corrupt record
// loads as an empty scene, and a failed write is logged as a warning
// while the in-memory mutation that triggered it stands. Commits are
// fire-and-forget relative to the caller; a single writer goroutine
// applies them to disk in version order.
package persist

import (
	"encoding/json"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/chazu/stax/pkg/scene"
)

// stateKey is the single record the whole scene is stored under.
var stateKey = []byte("scene/state")

// writeQueueDepth bounds how many committed snapshots may be waiting on
// the writer goroutine before commits start blocking.
const writeQueueDepth = 64

// record is the persisted shape: the full scene graph, the next-id
// counter, and the monotonic version. NextID is a pointer so an absent
// field can be told apart from zero; a record without a version field
// loads as version 0.
type record struct {
	Objects     map[string]*scene.Object `json:"objects"`
	Connections []scene.Connection       `json:"connections"`
	NextID      *uint64                  `json:"next_id,omitempty"`
	Version     uint64                   `json:"version"`
}

// Config holds configuration for a persistence store.
type Config struct {
	// Path is the directory for the BadgerDB files. Ignored when
	// InMemory is set.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// Logger receives persistence warnings. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Store is a versioned snapshot store. It implements scene.Committer.
type Store struct {
	db     *badger.DB
	logger *zap.Logger

	mu      sync.Mutex
	version uint64

	writes chan writeReq
	done   chan struct{}
}

type writeReq struct {
	version uint64
	data    []byte
}

// Open opens or creates the store and starts its writer goroutine.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	path := cfg.Path
	if cfg.InMemory {
		// Badger refuses a directory in disk-less mode.
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		writes: make(chan writeReq, writeQueueDepth),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Load reads the persisted record. Missing record, parse failure, or
// schema mismatch all fall back to an empty scene with nextID 1 and
// version 0; persistence corruption never blocks startup. An absent or
// stale counter is inferred as one past the highest numeric id suffix,
// floored at the stored value, so future ids cannot collide.
func (s *Store) Load() (*scene.Scene, uint64, uint64) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return scene.NewScene(), 1, 0
	}
	if err != nil {
		s.logger.Warn("persisted scene unreadable, starting empty", zap.Error(err))
		return scene.NewScene(), 1, 0
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("persisted scene corrupt, starting empty", zap.Error(err))
		return scene.NewScene(), 1, 0
	}

	sc := &scene.Scene{Objects: rec.Objects, Connections: rec.Connections}
	if sc.Objects == nil {
		sc.Objects = make(map[string]*scene.Object)
	}
	if sc.Connections == nil {
		sc.Connections = []scene.Connection{}
	}
	if err := scene.ValidateScene(sc); err != nil {
		s.logger.Warn("persisted scene invalid, starting empty", zap.Error(err))
		return scene.NewScene(), 1, 0
	}

	nextID := uint64(1)
	if rec.NextID != nil && *rec.NextID >= 1 {
		nextID = *rec.NextID
	}
	if inferred := maxIDSuffix(sc) + 1; inferred > nextID {
		nextID = inferred
	}

	s.mu.Lock()
	s.version = rec.Version
	s.mu.Unlock()

	return sc, nextID, rec.Version
}

// Commit advances the version counter and enqueues a durable write of
// the full record. The returned version is final immediately; the disk
// write completes in the background and its failure only produces a
// warning.
func (s *Store) Commit(sc *scene.Scene, nextID uint64) uint64 {
	s.mu.Lock()
	s.version++
	version := s.version
	s.mu.Unlock()

	rec := record{
		Objects:     sc.Objects,
		Connections: sc.Connections,
		NextID:      &nextID,
		Version:     version,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("scene snapshot not persisted", zap.Uint64("version", version), zap.Error(err))
		return version
	}

	s.writes <- writeReq{version: version, data: data}
	return version
}

// Close drains pending writes and closes the underlying database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

// writer applies queued snapshots to disk, one at a time, in the order
// they were committed.
func (s *Store) writer() {
	defer close(s.done)
	for req := range s.writes {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(stateKey, req.data)
		})
		if err != nil {
			s.logger.Warn("scene snapshot write failed",
				zap.Uint64("version", req.version), zap.Error(err))
		}
	}
}

// maxIDSuffix returns the highest numeric suffix among store-allocated
// object ids, or 0 when there are none.
func maxIDSuffix(sc *scene.Scene) uint64 {
	var max uint64
	for _, id := range sc.ObjectIDs() {
		if n, ok := scene.IDSuffix(id); ok && n > max {
			max = n
		}
	}
	return max
}

// badgerLogger adapts zap to BadgerDB's Logger interface. Badger's
// internal chatter is demoted to debug.
type badgerLogger struct {
	logger *zap.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

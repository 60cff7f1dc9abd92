// Package badger provides a snapshotting persistent store backed by an
// embedded BadgerDB key-value database. Each collection is stored under the
// key "designcore/state/<bucket>" and rewritten in a single badger transaction after
// every successful commit.
package badger

import (
	"context"
	"designcore/internal/infra/persistence/memory"
	"designcore/pkg/domain"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var _ domain.PersistentStore = (*Store)(nil)

const keyPrefix = "designcore/state/"

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *zap.Logger
}

// zapBadgerLogger adapts zap to badger's Logger interface.
type zapBadgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapBadgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(strings.TrimSpace(format), args...)
}

func (l *zapBadgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(strings.TrimSpace(format), args...)
}

func (l *zapBadgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(strings.TrimSpace(format), args...)
}

func (l *zapBadgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(strings.TrimSpace(format), args...)
}

// Store persists the in-memory state into BadgerDB.
type Store struct {
	*memory.Store
	db *badger.DB
	mu sync.Mutex
}

// Open opens a badger database per cfg and hydrates the in-memory store from
// any existing snapshot.
func Open(cfg Config, engine *domain.RulesEngine) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&zapBadgerLogger{sugar: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	snapshot := memory.Snapshot{}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			bucket := strings.TrimPrefix(string(item.Key()), keyPrefix)
			target := snapshot.Bucket(domain.EntityType(bucket))
			if target == nil {
				continue
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, target)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	return s.db.Update(func(txn *badger.Txn) error {
		for _, bucket := range memory.Buckets() {
			data, err := json.Marshal(snapshot.Bucket(domain.EntityType(bucket)))
			if err != nil {
				return fmt.Errorf("encode %s: %w", bucket, err)
			}
			if err := txn.Set([]byte(keyPrefix+bucket), data); err != nil {
				return fmt.Errorf("set %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// RunInTransaction applies fn through the in-memory store, then snapshots
// the committed state to badger.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, domain.WrapStore("badger persist", err)
	}
	return res, nil
}

// DB exposes the underlying badger handle.
func (s *Store) DB() *badger.DB { return s.db }

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }

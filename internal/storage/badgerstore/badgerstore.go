// Package badgerstore persists evaluation documents in an embedded
// BadgerDB instance.
//
// Key layout:
//
//	handoff/<pipelineID>/<seq>-<handoffID>  -> HandoffEvaluation JSON
//	pipeline/<pipelineID>                   -> pipeline rollup JSON
//
// The handoff sequence component is the insertion timestamp in
// zero-padded unix nanoseconds, so a prefix scan over a pipeline yields
// handoffs in recorded order without a secondary index. Handoff records
// are append-only; pipeline rollups are derived views and may be
// refreshed in place.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/contextscope/ctxeval/internal/domain"
)

const (
	handoffPrefix  = "handoff/"
	pipelinePrefix = "pipeline/"
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for database files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode with no disk persistence.
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives badger's internal log output. If nil, badger's
	// internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: synchronous writes and a
// persistent database at the given path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: in-memory mode with
// synchronous writes disabled.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct{ logger *slog.Logger }

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a badger-backed implementation of evaluation.Store.
// The underlying database is safe for concurrent use.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens a badger database with the given configuration and wraps it
// in a Store. The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenInMemory opens a throwaway in-memory store for testing.
func OpenInMemory() (*Store, error) { return Open(InMemoryConfig()) }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func handoffKey(pipelineID string, at time.Time, handoffID string) []byte {
	return fmt.Appendf(nil, "%s%s/%020d-%s", handoffPrefix, pipelineID, at.UnixNano(), handoffID)
}

func pipelineKey(pipelineID string) []byte {
	return []byte(pipelinePrefix + pipelineID)
}

// storedPipeline wraps a rollup with its refresh time so recent rollups
// can be listed without decoding every handoff.
type storedPipeline struct {
	UpdatedAt time.Time                 `json:"updated_at"`
	Doc       domain.PipelineEvaluation `json:"doc"`
}

// InsertHandoff appends a handoff evaluation and returns its ID.
func (s *Store) InsertHandoff(ctx context.Context, doc *domain.HandoffEvaluation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc == nil {
		return "", domain.ErrSchemaViolation
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode handoff %s: %w", doc.HandoffID, err)
	}

	key := handoffKey(doc.PipelineID, s.now(), doc.HandoffID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return "", fmt.Errorf("store handoff %s: %w", doc.HandoffID, err)
	}
	return doc.HandoffID, nil
}

// InsertPipeline records or refreshes a pipeline rollup.
func (s *Store) InsertPipeline(ctx context.Context, doc *domain.PipelineEvaluation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc == nil {
		return "", domain.ErrSchemaViolation
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(storedPipeline{UpdatedAt: s.now().UTC(), Doc: *doc})
	if err != nil {
		return "", fmt.Errorf("encode pipeline %s: %w", doc.PipelineID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pipelineKey(doc.PipelineID), raw)
	})
	if err != nil {
		return "", fmt.Errorf("store pipeline %s: %w", doc.PipelineID, err)
	}
	return doc.PipelineID, nil
}

// GetHandoffs returns the handoff evaluations of a pipeline in the order
// they were recorded. Unknown pipelines yield an empty slice.
func (s *Store) GetHandoffs(ctx context.Context, pipelineID string) ([]domain.HandoffEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(handoffPrefix + pipelineID + "/")
	out := []domain.HandoffEvaluation{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var doc domain.HandoffEvaluation
				if err := json.Unmarshal(val, &doc); err != nil {
					return fmt.Errorf("decode handoff at %s: %w", it.Item().Key(), err)
				}
				out = append(out, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan handoffs for pipeline %s: %w", pipelineID, err)
	}
	return out, nil
}

// GetRecentPipelines returns up to n pipeline rollups, most recently
// refreshed first. n <= 0 returns all rollups.
func (s *Store) GetRecentPipelines(ctx context.Context, n int) ([]domain.PipelineEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(pipelinePrefix)
	var stored []storedPipeline

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sp storedPipeline
				if err := json.Unmarshal(val, &sp); err != nil {
					return fmt.Errorf("decode pipeline at %s: %w", it.Item().Key(), err)
				}
				stored = append(stored, sp)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pipeline rollups: %w", err)
	}

	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].UpdatedAt.After(stored[j].UpdatedAt)
	})
	if n > 0 && len(stored) > n {
		stored = stored[:n]
	}

	out := make([]domain.PipelineEvaluation, 0, len(stored))
	for _, sp := range stored {
		out = append(out, sp.Doc)
	}
	return out, nil
}

// Package history archives finished searches per user in an embedded badger database.
package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
)

const keyPrefix = "search\x00"

var ErrInvalidEntry = errors.New("history entry needs an id and a user")

// Entry is one archived search.
type Entry struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id"`
	SessionID      string               `json:"session_id"`
	Mission        string               `json:"mission"`
	Attributes     candidate.Attributes `json:"attributes"`
	Matches        []candidate.Match    `json:"matches"`
	Recommendation string               `json:"recommendation,omitempty"`
	Message        string               `json:"message,omitempty"`
	Fallback       bool                 `json:"fallback,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type Options struct {
	// Dir holds the database files. Empty means in-memory.
	Dir string
	// TTL expires entries after the given age. Zero keeps them forever.
	TTL time.Duration
}

type Store struct {
	db  *badger.DB
	ttl time.Duration
}

type zapBadgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*zapBadgerLogger)(nil)

func (l *zapBadgerLogger) Errorf(msg string, args ...any)   { l.logger.Errorf(msg, args...) }
func (l *zapBadgerLogger) Warningf(msg string, args ...any) { l.logger.Warnf(msg, args...) }
func (l *zapBadgerLogger) Infof(msg string, args ...any)    { l.logger.Debugf(msg, args...) }
func (l *zapBadgerLogger) Debugf(msg string, args ...any)   { l.logger.Debugf(msg, args...) }

func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var bopts badger.Options
	if opts.Dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts.Logger = &zapBadgerLogger{logger: logger.Named("badger").Sugar()}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	return &Store{db: db, ttl: opts.TTL}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func userPrefix(userID string) []byte {
	return []byte(keyPrefix + userID + "\x00")
}

// entryKey sorts entries of one user by creation time.
func entryKey(e Entry) []byte {
	prefix := userPrefix(e.UserID)
	key := make([]byte, 0, len(prefix)+8+len(e.ID))
	key = append(key, prefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.CreatedAt.UnixNano()))
	return append(key, e.ID...)
}

func (s *Store) Record(_ context.Context, e Entry) error {
	if e.ID == "" || e.UserID == "" {
		return ErrInvalidEntry
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(entryKey(e), value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// List returns up to limit entries of the user, newest first. A non-positive
// limit returns everything.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	prefix := userPrefix(userID)
	var out []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(value, &e); err != nil {
				return fmt.Errorf("decode history entry: %w", err)
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// DeleteUser drops every entry of the user and reports how many were removed.
func (s *Store) DeleteUser(_ context.Context, userID string) (int, error) {
	prefix := userPrefix(userID)
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}

	return len(keys), nil
}

// Package badger provides a prefs.Backend on an embedded BadgerDB.
package badger

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/secureguard/prefs"
)

// Key layout: values live under valuePrefix, each prefixed with the 8-byte
// big-endian sequence number assigned on first write.
var (
	valuePrefix = []byte("v/")
	seqKey      = []byte("m/seq")
)

const seqBandwidth = 64

// Config opens a database for the Backend.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil silences them.
	Logger *zap.Logger
}

// Open opens a database from cfg.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
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
		opts = opts.WithLogger(zapLogger{cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// zapLogger adapts zap to badger.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, a ...any)   { l.s.Errorf(f, a...) }
func (l zapLogger) Warningf(f string, a ...any) { l.s.Warnf(f, a...) }
func (l zapLogger) Infof(f string, a ...any)    { l.s.Infof(f, a...) }
func (l zapLogger) Debugf(f string, a ...any)   { l.s.Debugf(f, a...) }

// Backend stores entries in a BadgerDB. The database may be shared; the
// Backend only touches its own key prefixes.
type Backend struct {
	db       *badger.DB
	seq      *badger.Sequence
	maxBytes int
}

// Option configures a Backend.
type Option func(*Backend)

// WithMaxBytes caps the total bytes of keys and values. Writes beyond it
// fail with prefs.ErrQuotaExceeded. Zero means unlimited.
func WithMaxBytes(n int) Option {
	return func(b *Backend) {
		b.maxBytes = n
	}
}

// New creates a Backend on db. Close releases the sequence lease but does
// not close db.
func New(db *badger.DB, opts ...Option) (*Backend, error) {
	seq, err := db.GetSequence(seqKey, seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	b := &Backend{db: db, seq: seq}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close releases the sequence lease.
func (b *Backend) Close() error {
	return b.seq.Release()
}

func valueKey(key string) []byte {
	return append(slices.Clone(valuePrefix), key...)
}

// translate maps oversized transactions to prefs.ErrQuotaExceeded.
func translate(err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(valueKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			if len(raw) < 8 {
				return fmt.Errorf("record for %s too short", key)
			}
			value, found = string(raw[8:]), true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, found, nil
}

// SetItem implements prefs.Backend. An existing key keeps its sequence
// number.
func (b *Backend) SetItem(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		var seq uint64
		item, err := txn.Get(valueKey(key))
		switch {
		case err == nil:
			if err := item.Value(func(raw []byte) error {
				if len(raw) >= 8 {
					seq = binary.BigEndian.Uint64(raw)
				}
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			if seq, err = b.seq.Next(); err != nil {
				return err
			}
		default:
			return err
		}

		if b.maxBytes > 0 {
			size, err := b.sizeTxn(txn, key)
			if err != nil {
				return err
			}
			if size += len(key) + len(value); size > b.maxBytes {
				return fmt.Errorf("%d bytes over %d byte limit: %w", size, b.maxBytes, prefs.ErrQuotaExceeded)
			}
		}

		record := make([]byte, 8, 8+len(value))
		binary.BigEndian.PutUint64(record, seq)
		return txn.Set(valueKey(key), append(record, value...))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, translate(err))
	}
	return nil
}

// sizeTxn sums keys and values, excluding skip.
func (b *Backend) sizeTxn(txn *badger.Txn, skip string) (int, error) {
	n := 0
	err := b.each(txn, false, func(key string, _ uint64, item *badger.Item) error {
		if key != skip {
			n += len(key) + int(item.ValueSize()) - 8
		}
		return nil
	})
	return n, err
}

// each visits every entry. Values are only read when withValues is set.
func (b *Backend) each(txn *badger.Txn, withValues bool, fn func(key string, seq uint64, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = valuePrefix
	opts.PrefetchValues = withValues
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.Key()[len(valuePrefix):])
		var seq uint64
		if withValues {
			if err := item.Value(func(raw []byte) error {
				if len(raw) >= 8 {
					seq = binary.BigEndian.Uint64(raw)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if err := fn(key, seq, item); err != nil {
			return err
		}
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(_ context.Context, key string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(valueKey(key))
	}); err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(_ context.Context) ([]string, error) {
	type entry struct {
		key string
		seq uint64
	}
	var entries []entry
	err := b.db.View(func(txn *badger.Txn) error {
		return b.each(txn, true, func(key string, seq uint64, _ *badger.Item) error {
			entries = append(entries, entry{key: key, seq: seq})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys: %w", err)
	}
	slices.SortFunc(entries, func(x, y entry) int { return cmp.Compare(x.seq, y.seq) })

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

// Clear implements prefs.Backend.
func (b *Backend) Clear(_ context.Context) error {
	if err := b.db.DropPrefix(valuePrefix); err != nil {
		return fmt.Errorf("badger clear: %w", err)
	}
	return nil
}

var _ prefs.Backend = (*Backend)(nil)

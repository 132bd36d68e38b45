// Package file provides a prefs.Backend that keeps entries in a single JSON
// document on disk, and a prefs.Watcher for files using fsnotify.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/secureguard/prefs"
)

// document is the on-disk layout. Entries keep insertion order so the
// oldest keys come first.
type document struct {
	Entries []entry `json:"entries"`
}

type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (d *document) index(key string) int {
	for i, e := range d.Entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func (d *document) size() int {
	n := 0
	for _, e := range d.Entries {
		n += len(e.Key) + len(e.Value)
	}
	return n
}

// Backend stores prefs entries in a JSON file. Every operation re-reads the
// file, so edits made by other processes are picked up; writes replace the
// file atomically with a rename.
type Backend struct {
	path     string
	perm     os.FileMode
	maxBytes int

	mu sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

// WithMaxBytes limits the total size of keys and values. Writes that would
// exceed it fail with prefs.ErrQuotaExceeded. Zero means unlimited.
func WithMaxBytes(n int) Option {
	return func(b *Backend) {
		b.maxBytes = n
	}
}

// WithPerm sets the permission bits of the document. Defaults to 0600.
func WithPerm(perm os.FileMode) Option {
	return func(b *Backend) {
		b.perm = perm
	}
}

// New creates a Backend for the document at path. The file is created on
// the first write.
func New(path string, opts ...Option) *Backend {
	b := &Backend{
		path: path,
		perm: 0o600,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the document path.
func (b *Backend) Path() string {
	return b.path
}

func (b *Backend) load() (*document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	return decode(data)
}

func decode(data []byte) (*document, error) {
	doc := &document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func (b *Backend) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(b.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}
	return nil
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return "", false, err
	}
	if i := doc.index(key); i >= 0 {
		return doc.Entries[i].Value, true, nil
	}
	return "", false, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	if i := doc.index(key); i >= 0 {
		doc.Entries[i].Value = value
	} else {
		doc.Entries = append(doc.Entries, entry{Key: key, Value: value})
	}
	if b.maxBytes > 0 {
		if size := doc.size(); size > b.maxBytes {
			return fmt.Errorf("document would hold %d of %d bytes: %w", size, b.maxBytes, prefs.ErrQuotaExceeded)
		}
	}
	return b.save(doc)
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	i := doc.index(key)
	if i < 0 {
		return nil
	}
	doc.Entries = append(doc.Entries[:i], doc.Entries[i+1:]...)
	return b.save(doc)
}

// Keys implements prefs.Backend in insertion order.
func (b *Backend) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(doc.Entries))
	for i, e := range doc.Entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Clear implements prefs.Backend.
func (b *Backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.save(&document{})
}

// WatchKey returns a Watcher that emits the value stored under key each time
// the document changes it.
func (b *Backend) WatchKey(key string) prefs.Watcher {
	return &keyWatcher{files: NewWatcher(b.path), key: key}
}

type keyWatcher struct {
	files *Watcher
	key   string
}

func (w *keyWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	docs, err := w.files.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		var (
			last    string
			emitted bool
		)
		for data := range docs {
			doc, err := decode(data)
			if err != nil {
				continue
			}
			i := doc.index(w.key)
			if i < 0 {
				continue
			}
			value := doc.Entries[i].Value
			if emitted && value == last {
				continue
			}
			last, emitted = value, true
			select {
			case out <- []byte(value):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var (
	_ prefs.Backend = (*Backend)(nil)
	_ prefs.Watcher = (*keyWatcher)(nil)
)

// Package firestore provides a prefs.Backend on a Firestore collection and
// a prefs.Watcher for Firestore documents using realtime listeners.
package firestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/secureguard/prefs"
)

// Defaults for the Backend.
const (
	DefaultCollection = "secureguard_prefs"

	// MaxValueBytes keeps values inside Firestore's 1 MiB document limit
	// with room for the other fields.
	MaxValueBytes = 1<<20 - 1024
)

// Document field names.
const (
	FieldKey     = "key"
	FieldValue   = "value"
	FieldCreated = "created"
)

// Backend stores each entry as a document holding the key, the value and
// a server creation timestamp. Document IDs are the base64url encoding of
// the key, since raw keys may be reserved or contain slashes.
type Backend struct {
	client     *firestore.Client
	collection string
	maxBytes   int
}

// Option configures a Backend.
type Option func(*Backend)

// WithCollection sets the collection. Defaults to "secureguard_prefs".
func WithCollection(name string) Option {
	return func(b *Backend) {
		b.collection = name
	}
}

// WithMaxValueBytes lowers the value size limit.
func WithMaxValueBytes(n int) Option {
	return func(b *Backend) {
		b.maxBytes = n
	}
}

// New creates a Backend using client.
func New(client *firestore.Client, opts ...Option) *Backend {
	b := &Backend{
		client:     client,
		collection: DefaultCollection,
		maxBytes:   MaxValueBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DocumentID returns the document ID used for key.
func DocumentID(key string) string {
	return "k" + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (b *Backend) doc(key string) *firestore.DocumentRef {
	return b.client.Collection(b.collection).Doc(DocumentID(key))
}

// translate maps exhausted quotas and oversized documents to
// prefs.ErrQuotaExceeded.
func translate(err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	if s.Code() == codes.ResourceExhausted ||
		(s.Code() == codes.InvalidArgument && strings.Contains(s.Message(), "maximum")) {
		return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	snap, err := b.doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("firestore get %s: %w", key, err)
	}
	v, err := snap.DataAt(FieldValue)
	if err != nil {
		return "", false, fmt.Errorf("firestore get %s: %w", key, err)
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("firestore get %s: value is %T, not string", key, v)
	}
	return s, true, nil
}

// SetItem implements prefs.Backend. The creation timestamp is written only
// when the document is first created.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	if b.maxBytes > 0 && len(value) > b.maxBytes {
		return fmt.Errorf("value of %d bytes over %d byte limit: %w", len(value), b.maxBytes, prefs.ErrQuotaExceeded)
	}
	ref := b.doc(key)
	err := b.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return tx.Create(ref, map[string]any{
				FieldKey:     key,
				FieldValue:   value,
				FieldCreated: firestore.ServerTimestamp,
			})
		}
		if err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: FieldValue, Value: value}})
	})
	if err != nil {
		return fmt.Errorf("firestore set %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	if _, err := b.doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	iter := b.client.Collection(b.collection).OrderBy(FieldCreated, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore keys: %w", err)
		}
		k, err := snap.DataAt(FieldKey)
		if err != nil {
			continue
		}
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// Clear implements prefs.Backend.
func (b *Backend) Clear(ctx context.Context) error {
	refs, err := b.client.Collection(b.collection).DocumentRefs(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("firestore clear: %w", err)
	}
	for _, ref := range refs {
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore clear %s: %w", ref.ID, err)
		}
	}
	return nil
}

// WatchKey returns a Watcher for the document backing key.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.client, b.collection, DocumentID(key))
}

var _ prefs.Backend = (*Backend)(nil)

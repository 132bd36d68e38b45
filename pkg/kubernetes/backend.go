// Package kubernetes provides a prefs.Backend on the data of one ConfigMap
// and a prefs.Watcher for a single ConfigMap or Secret key.
package kubernetes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/secureguard/prefs"
)

// Defaults for the Backend.
const (
	DefaultName = "secureguard-prefs"

	// MaxObjectBytes is the API server's size limit for a ConfigMap.
	MaxObjectBytes = 1 << 20

	// OrderAnnotation records key insertion order on the ConfigMap.
	OrderAnnotation = "prefs.secureguard.io/order"
)

// Backend stores entries in the data of a single ConfigMap, created on
// first write. Data keys are unordered, so insertion order is kept in an
// annotation.
type Backend struct {
	client    kubernetes.Interface
	namespace string
	name      string
	maxBytes  int
}

// Option configures a Backend.
type Option func(*Backend)

// WithName sets the ConfigMap name. Defaults to "secureguard-prefs".
func WithName(name string) Option {
	return func(b *Backend) {
		b.name = name
	}
}

// WithMaxBytes lowers the data size limit below MaxObjectBytes.
func WithMaxBytes(n int) Option {
	return func(b *Backend) {
		b.maxBytes = n
	}
}

// New creates a Backend for a ConfigMap in namespace.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Backend {
	b := &Backend{
		client:    client,
		namespace: namespace,
		name:      DefaultName,
		maxBytes:  MaxObjectBytes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) get(ctx context.Context) (*corev1.ConfigMap, error) {
	cm, err := b.client.CoreV1().ConfigMaps(b.namespace).Get(ctx, b.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get configmap %s/%s: %w", b.namespace, b.name, err)
	}
	return cm, nil
}

// mutate applies fn to the ConfigMap and writes it back, retrying on
// conflicts. The ConfigMap is created if missing.
func (b *Backend) mutate(ctx context.Context, fn func(cm *corev1.ConfigMap) error) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := b.get(ctx)
		if err != nil {
			return err
		}
		create := cm == nil
		if create {
			cm = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{Name: b.name, Namespace: b.namespace},
			}
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}
		if err := fn(cm); err != nil {
			return err
		}

		api := b.client.CoreV1().ConfigMaps(b.namespace)
		if create {
			_, err = api.Create(ctx, cm, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				return apierrors.NewConflict(corev1.Resource("configmaps"), b.name, err)
			}
		} else {
			_, err = api.Update(ctx, cm, metav1.UpdateOptions{})
		}
		if apierrors.IsRequestEntityTooLargeError(err) {
			return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
		}
		return err
	})
}

func order(cm *corev1.ConfigMap) []string {
	raw := cm.Annotations[OrderAnnotation]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func setOrder(cm *corev1.ConfigMap, keys []string) {
	if cm.Annotations == nil {
		cm.Annotations = map[string]string{}
	}
	cm.Annotations[OrderAnnotation] = strings.Join(keys, ",")
}

func dataSize(data map[string]string) int {
	n := 0
	for k, v := range data {
		n += len(k) + len(v)
	}
	return n
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	cm, err := b.get(ctx)
	if err != nil || cm == nil {
		return "", false, err
	}
	v, ok := cm.Data[key]
	return v, ok, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	if errs := validation.IsConfigMapKey(key); len(errs) > 0 {
		return fmt.Errorf("configmap key %q: %s: %w", key, strings.Join(errs, "; "), prefs.ErrInvalidKey)
	}
	return b.mutate(ctx, func(cm *corev1.ConfigMap) error {
		old, exists := cm.Data[key]
		size := dataSize(cm.Data) + len(value)
		if exists {
			size -= len(old)
		} else {
			size += len(key)
		}
		if size > b.maxBytes {
			return fmt.Errorf("configmap data of %d bytes over %d byte limit: %w", size, b.maxBytes, prefs.ErrQuotaExceeded)
		}
		cm.Data[key] = value
		if keys := order(cm); !slices.Contains(keys, key) {
			setOrder(cm, append(keys, key))
		}
		return nil
	})
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	cm, err := b.get(ctx)
	if err != nil || cm == nil {
		return err
	}
	if _, ok := cm.Data[key]; !ok {
		return nil
	}
	return b.mutate(ctx, func(cm *corev1.ConfigMap) error {
		delete(cm.Data, key)
		setOrder(cm, slices.DeleteFunc(order(cm), func(k string) bool { return k == key }))
		return nil
	})
}

// Keys implements prefs.Backend in insertion order. Keys written by other
// tools, missing from the order annotation, are listed first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	cm, err := b.get(ctx)
	if err != nil || cm == nil {
		return nil, err
	}
	known := order(cm)
	var keys []string
	for k := range cm.Data {
		if !slices.Contains(known, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range known {
		if _, ok := cm.Data[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Clear implements prefs.Backend. The ConfigMap itself is kept.
func (b *Backend) Clear(ctx context.Context) error {
	cm, err := b.get(ctx)
	if err != nil || cm == nil {
		return err
	}
	return b.mutate(ctx, func(cm *corev1.ConfigMap) error {
		cm.Data = map[string]string{}
		setOrder(cm, nil)
		return nil
	})
}

// WatchKey returns a Watcher for key in the Backend's ConfigMap.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.client, b.namespace, b.name, key)
}

var _ prefs.Backend = (*Backend)(nil)

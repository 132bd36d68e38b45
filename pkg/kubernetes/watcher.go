package kubernetes

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/secureguard/prefs"
)

// ResourceType selects the object kind a Watcher reads.
type ResourceType int

const (
	// ConfigMap watches a ConfigMap.
	ConfigMap ResourceType = iota
	// Secret watches a Secret.
	Secret
)

var errWatchClosed = errors.New("watch channel closed")

// Watcher watches one data key of a ConfigMap or Secret.
type Watcher struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	key          string
	resourceType ResourceType
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithResourceType sets the object kind. Defaults to ConfigMap.
func WithResourceType(rt ResourceType) WatcherOption {
	return func(w *Watcher) {
		w.resourceType = rt
	}
}

// NewWatcher creates a Watcher for key in the named object.
func NewWatcher(client kubernetes.Interface, namespace, name, key string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		client:       client,
		namespace:    namespace,
		name:         name,
		key:          key,
		resourceType: ConfigMap,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch emits the key's value whenever the object changes and the key is
// present. The current value is emitted first. The watch is re-established
// after server-side closes until ctx ends.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			_ = w.watchLoop(ctx, out) //nolint:errcheck // retried until ctx ends
		}
	}()

	return out, nil
}

func (w *Watcher) watchLoop(ctx context.Context, out chan<- []byte) error {
	value, resourceVersion, err := w.getValue(ctx)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	if value != nil {
		select {
		case out <- value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", w.name),
		ResourceVersion: resourceVersion,
	}
	var events watch.Interface
	if w.resourceType == ConfigMap {
		events, err = w.client.CoreV1().ConfigMaps(w.namespace).Watch(ctx, opts)
	} else {
		events, err = w.client.CoreV1().Secrets(w.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer events.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events.ResultChan():
			if !ok {
				return errWatchClosed
			}
			switch ev.Type {
			case watch.Error:
				return apierrors.FromObject(ev.Object)
			case watch.Deleted:
				continue
			}
			value := w.extractValue(ev.Object)
			if value == nil {
				continue
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// getValue returns the key's value, or nil when the key is absent, and the
// object's resource version.
func (w *Watcher) getValue(ctx context.Context) ([]byte, string, error) {
	if w.resourceType == ConfigMap {
		cm, err := w.client.CoreV1().ConfigMaps(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
		if err != nil {
			return nil, "", err
		}
		return w.extractValue(cm), cm.ResourceVersion, nil
	}

	secret, err := w.client.CoreV1().Secrets(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	if err != nil {
		return nil, "", err
	}
	return w.extractValue(secret), secret.ResourceVersion, nil
}

func (w *Watcher) extractValue(obj runtime.Object) []byte {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		if w.resourceType != ConfigMap {
			return nil
		}
		if v, ok := o.Data[w.key]; ok {
			return []byte(v)
		}
	case *corev1.Secret:
		if w.resourceType != Secret {
			return nil
		}
		if v, ok := o.Data[w.key]; ok {
			return v
		}
	}
	return nil
}

var _ prefs.Watcher = (*Watcher)(nil)

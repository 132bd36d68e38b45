package etcd

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/secureguard/prefs"
)

func setupEtcd(t *testing.T) *clientv3.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "gcr.io/etcd-development/etcd:v3.5.21")
	if err != nil {
		t.Fatalf("failed to start etcd container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ClientEndpoint(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{endpoint},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestTranslate(t *testing.T) {
	for _, err := range []error{rpctypes.ErrNoSpace, rpctypes.ErrGRPCRequestTooLarge} {
		if !errors.Is(translate(err), prefs.ErrQuotaExceeded) {
			t.Errorf("expected %v to map to quota", err)
		}
	}
	if errors.Is(translate(rpctypes.ErrKeyNotFound), prefs.ErrQuotaExceeded) {
		t.Error("key not found should not map to quota")
	}
}

func TestBackend_CRUD(t *testing.T) {
	client := setupEtcd(t)
	ctx := context.Background()
	b := New(client, WithPrefix("/test/"))

	for _, k := range []string{"c", "a", "b"} {
		if err := b.SetItem(ctx, k, k+"-v"); err != nil {
			t.Fatalf("SetItem(%s) error = %v", k, err)
		}
	}
	if err := b.SetItem(ctx, "c", "c-v2"); err != nil {
		t.Fatalf("SetItem error = %v", err)
	}
	if _, err := client.Put(ctx, "/elsewhere", "x"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"c", "a", "b"}) {
		t.Errorf("expected create order [c a b], got %v", keys)
	}

	v, ok, err := b.GetItem(ctx, "c")
	if err != nil || !ok || v != "c-v2" {
		t.Errorf("unexpected get: %q %v %v", v, ok, err)
	}

	if err := b.RemoveItem(ctx, "a"); err != nil {
		t.Fatalf("RemoveItem error = %v", err)
	}
	if _, ok, _ := b.GetItem(ctx, "a"); ok {
		t.Error("expected a removed")
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear error = %v", err)
	}
	if keys, _ := b.Keys(ctx); len(keys) != 0 {
		t.Errorf("expected empty prefix, got %v", keys)
	}
	resp, err := client.Get(ctx, "/elsewhere")
	if err != nil || len(resp.Kvs) != 1 {
		t.Error("expected keys outside the prefix to survive Clear")
	}
}

func TestBackend_FollowerPicksUpExternalEdits(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b := New(client)
	m := prefs.NewManager(prefs.OpenStore(ctx, b))
	m.Load(ctx)

	f := prefs.NewFollower(b.WatchKey(prefs.DefaultSettingsKey), m, prefs.WithDebounce(10*time.Millisecond))
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := client.Put(ctx, DefaultPrefix+prefs.DefaultSettingsKey, `{"theme":"dark","language":"es"}`); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for m.Theme() != prefs.ThemeDark {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for external edit, theme %q", m.Theme())
		case <-time.After(20 * time.Millisecond):
		}
	}
	if m.Language() != prefs.LanguageSpanish {
		t.Errorf("expected es, got %q", m.Language())
	}
}

func TestWatcher_EmitsOnChange(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := "/config/scheme"
	if _, err := client.Put(ctx, key, "light"); err != nil {
		t.Fatalf("failed to put initial value: %v", err)
	}

	ch, err := NewWatcher(client, key).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "light" {
			t.Errorf("expected light, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if _, err := client.Put(ctx, key, "dark"); err != nil {
		t.Fatalf("failed to update value: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "dark" {
			t.Errorf("expected dark, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestWatcher_NonexistentKey(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ch, err := NewWatcher(client, "/nonexistent/key").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-ch:
		t.Error("did not expect value for nonexistent key")
	case <-time.After(500 * time.Millisecond):
	}

	if _, err := client.Put(ctx, "/nonexistent/key", "created"); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "created" {
			t.Errorf("expected 'created', got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for created key")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	client := setupEtcd(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := NewWatcher(client, "/config/none").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

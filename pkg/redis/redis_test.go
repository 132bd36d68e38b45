package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/secureguard/prefs"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})
	t.Cleanup(func() { client.Close() })

	if err := client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		t.Fatalf("failed to enable keyspace notifications: %v", err)
	}

	return client
}

func TestTranslate(t *testing.T) {
	oom := redis.RedisError("OOM command not allowed when used memory > 'maxmemory'.")
	if err := translate(oom); !errors.Is(err, prefs.ErrQuotaExceeded) {
		t.Errorf("expected quota error, got %v", err)
	}
	if err := translate(errors.New("ERR other")); errors.Is(err, prefs.ErrQuotaExceeded) {
		t.Error("expected other errors untouched")
	}
	if translate(nil) != nil {
		t.Error("expected nil")
	}
}

func TestBackend_MaxValueBytes(t *testing.T) {
	b := New(nil, WithMaxValueBytes(4))
	err := b.SetItem(context.Background(), "k", "12345")
	if !errors.Is(err, prefs.ErrQuotaExceeded) {
		t.Errorf("expected quota error before any network call, got %v", err)
	}
}

func TestBackend_CRUD(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	b := New(client, WithNamespace("test:"))

	for _, k := range []string{"b", "a", "c"} {
		if err := b.SetItem(ctx, k, "v-"+k); err != nil {
			t.Fatalf("SetItem failed: %v", err)
		}
	}
	if err := b.SetItem(ctx, "b", "v-b2"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"b", "a", "c"}) {
		t.Errorf("expected insertion order [b a c], got %v", keys)
	}

	v, ok, err := b.GetItem(ctx, "b")
	if err != nil || !ok || v != "v-b2" {
		t.Errorf("expected v-b2, got %q %v %v", v, ok, err)
	}
	if raw, _ := client.Get(ctx, "test:b").Result(); raw != "v-b2" {
		t.Errorf("expected namespaced key, got %q", raw)
	}

	if err := b.RemoveItem(ctx, "a"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, ok, _ := b.GetItem(ctx, "a"); ok {
		t.Error("expected a removed")
	}

	if err := client.Set(ctx, "unrelated", "x", 0).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if keys, _ := b.Keys(ctx); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
	if n, _ := client.Exists(ctx, "unrelated").Result(); n != 1 {
		t.Error("expected keys outside the namespace to survive Clear")
	}
}

func TestBackend_WithManager(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	b := New(client)

	store := prefs.OpenStore(ctx, b)
	if !store.IsAvailable() {
		t.Fatalf("expected redis to pass the probe, got %v", store.Error())
	}
	m := prefs.NewManager(store)
	m.Load(ctx)
	m.UpdateLanguage(ctx, prefs.LanguageSpanish)

	again := prefs.NewManager(prefs.OpenStore(ctx, New(client)))
	again.Load(ctx)
	if again.Language() != prefs.LanguageSpanish {
		t.Errorf("expected es after reload, got %q", again.Language())
	}
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Set(ctx, "pref:scheme", "dark", 0).Err(); err != nil {
		t.Fatalf("failed to set initial value: %v", err)
	}

	ch, err := NewWatcher(client, "pref:scheme").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case v := <-ch:
		if string(v) != "dark" {
			t.Errorf("expected dark, got %q", v)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for initial value")
	}
}

func TestWatcher_FollowsBackendWrites(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := New(client)
	if err := b.SetItem(ctx, "scheme", "light"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	ch, err := NewWatcher(client, b.Key("scheme")).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-ch

	if err := b.SetItem(ctx, "scheme", "dark"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	select {
	case v := <-ch:
		if string(v) != "dark" {
			t.Errorf("expected dark, got %q", v)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for change")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := NewWatcher(client, "pref:missing").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

package postgres

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/secureguard/prefs"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func setupBackend(t *testing.T) (*Backend, *pgxpool.Pool) {
	t.Helper()
	pool := setupPostgres(t)
	b := New(pool)
	if err := b.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return b, pool
}

func TestTranslate(t *testing.T) {
	for _, code := range []string{"53100", "54000", "53200", "22001"} {
		err := translate(&pgconn.PgError{Code: code})
		if !errors.Is(err, prefs.ErrQuotaExceeded) {
			t.Errorf("code %s: expected quota error, got %v", code, err)
		}
	}
	if err := translate(&pgconn.PgError{Code: "42P01"}); errors.Is(err, prefs.ErrQuotaExceeded) {
		t.Error("undefined table should not map to quota")
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("it's"); got != "'it''s'" {
		t.Errorf("expected escaped literal, got %s", got)
	}
}

func TestBackend_CRUD(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	for _, k := range []string{"secureguard_b", "secureguard_a", "other"} {
		if err := b.SetItem(ctx, k, `"`+k+`"`); err != nil {
			t.Fatalf("SetItem(%s) error = %v", k, err)
		}
	}
	if err := b.SetItem(ctx, "secureguard_b", `"updated"`); err != nil {
		t.Fatalf("SetItem error = %v", err)
	}

	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	want := []string{"secureguard_b", "secureguard_a", "other"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}

	v, ok, err := b.GetItem(ctx, "secureguard_b")
	if err != nil || !ok || v != `"updated"` {
		t.Errorf("unexpected get: %q %v %v", v, ok, err)
	}
	if _, ok, err := b.GetItem(ctx, "missing"); ok || err != nil {
		t.Errorf("expected missing key, got %v %v", ok, err)
	}

	if err := b.RemoveItem(ctx, "other"); err != nil {
		t.Fatalf("RemoveItem error = %v", err)
	}
	if err := b.RemoveItem(ctx, "other"); err != nil {
		t.Errorf("removing a missing key should not fail: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear error = %v", err)
	}
	if keys, _ := b.Keys(ctx); len(keys) != 0 {
		t.Errorf("expected empty table, got %v", keys)
	}
}

func TestBackend_StoreEviction(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	store := prefs.OpenStore(ctx, b, prefs.WithRetain(2))
	if !store.IsAvailable() {
		t.Fatalf("expected postgres to pass the probe: %v", store.Error())
	}
	for _, k := range []string{"foreign", "secureguard_1", "secureguard_2", "secureguard_3"} {
		if !store.Set(ctx, k, 1) {
			t.Fatalf("Set(%s) failed", k)
		}
	}

	if n := store.ClearOldEntries(ctx, prefs.DefaultAppPrefix); n != 2 {
		t.Errorf("expected 2 evictions, got %d", n)
	}
	keys := store.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"secureguard_2", "secureguard_3"}) {
		t.Errorf("expected newest app keys kept, got %v", keys)
	}
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	b, _ := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.SetItem(ctx, "scheme", "dark"); err != nil {
		t.Fatalf("SetItem error = %v", err)
	}

	ch, err := b.WatchKey("scheme").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "dark" {
			t.Errorf("expected dark, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}
}

func TestWatcher_IgnoresOtherKeys(t *testing.T) {
	b, _ := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.SetItem(ctx, "scheme", "light"); err != nil {
		t.Fatalf("SetItem error = %v", err)
	}

	ch, err := b.WatchKey("scheme").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-ch

	if err := b.SetItem(ctx, "other", "x"); err != nil {
		t.Fatalf("SetItem error = %v", err)
	}
	select {
	case data := <-ch:
		t.Errorf("did not expect update, got %q", data)
	case <-time.After(500 * time.Millisecond):
	}

	if err := b.SetItem(ctx, "scheme", "dark"); err != nil {
		t.Fatalf("SetItem error = %v", err)
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

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	b, _ := setupBackend(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.WatchKey("missing").Watch(ctx)
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

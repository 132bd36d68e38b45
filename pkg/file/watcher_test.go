package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/secureguard/prefs"
)

func TestWatcher_EmitsInitialContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preference")

	content := []byte("dark")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ch, err := NewWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	select {
	case data := <-ch:
		if !bytes.Equal(data, content) {
			t.Errorf("expected %q, got %q", content, data)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for initial content")
	}
}

func TestWatcher_NonexistentFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewWatcher("/nonexistent/path/preference").Watch(ctx); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "preference")
	if err := os.WriteFile(path, []byte("light"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel to close")
	}
}

func TestWatcher_FollowsRenames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preference")
	if err := os.WriteFile(path, []byte("light"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := NewWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	<-ch

	tmp := filepath.Join(dir, "preference.tmp")
	if err := os.WriteFile(tmp, []byte("dark"), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != "dark" {
			t.Errorf("expected dark, got %q", data)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for renamed file")
	}
}

func TestWatcher_DrivesPreferenceSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preference")
	if err := os.WriteFile(path, []byte("light"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	signal := prefs.NewWatchSignal(NewWatcher(path))
	if err := signal.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sink := prefs.NewChannelSink(4)
	r := prefs.NewThemeResolver(signal, sink)
	defer r.Close(ctx)
	r.SetTheme(ctx, prefs.ThemeSystem)
	<-sink.C()

	if err := os.WriteFile(path, []byte("dark"), 0o600); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}

	select {
	case change := <-sink.C():
		if change != (prefs.ThemeChange{Theme: prefs.ThemeDark, Source: prefs.SourceSystem}) {
			t.Errorf("expected {dark system}, got %+v", change)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for theme change")
	}
}

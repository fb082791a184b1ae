package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDropWatcherFiresOnSettledFile(t *testing.T) {
	dir := t.TempDir()
	dropped := make(chan string, 1)
	w := New(dir, func(path string) { dropped <- path }, nil, WithDebounce(50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "tracks.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-dropped:
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for drop callback")
	}
}

func TestDropWatcherIgnoresNonJSON(t *testing.T) {
	dir := t.TempDir()
	dropped := make(chan string, 1)
	w := New(dir, func(path string) { dropped <- path }, nil, WithDebounce(50*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-dropped:
		t.Errorf("unexpected callback for %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDropWatcherSyncExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	dropped := make(chan string, 1)
	w := New(dir, func(p string) { dropped <- p }, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := w.SyncExisting(); err != nil {
		t.Fatalf("SyncExisting failed: %v", err)
	}
	select {
	case got := <-dropped:
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sync callback")
	}
}

func TestDropWatcherCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop")
	w := New(dir, nil, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected drop dir to exist: %v", err)
	}
}

package session

import (
	"context"
	"path/filepath"
	"testing"
)

func setupFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func TestFileStoreGetMissing(t *testing.T) {
	store := setupFileStore(t)

	if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := setupFileStore(t)

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStoreMultipleKeys(t *testing.T) {
	ctx := context.Background()
	store := setupFileStore(t)

	store.Set(ctx, "a", "1")
	store.Set(ctx, "b", "2")

	if v, _ := store.Get(ctx, "a"); v != "1" {
		t.Errorf("key a = %q, want 1", v)
	}
	if v, _ := store.Get(ctx, "b"); v != "2" {
		t.Errorf("key b = %q, want 2", v)
	}
}

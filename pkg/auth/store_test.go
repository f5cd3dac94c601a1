package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "session.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// Nothing paired yet.
	blob, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil blob before first save, got %q", blob)
	}

	if err := store.Save([]byte(`{"noise":"keys"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	blob, err = store.Load()
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if string(blob) != `{"noise":"keys"}` {
		t.Errorf("loaded %q", blob)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credential file mode = %o, want 600", perm)
	}
}

func TestFileStoreIdempotentSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	blob := []byte("same bytes")
	if err := store.Save(blob); err != nil {
		t.Fatalf("first save: %v", err)
	}
	before, _ := os.Stat(path)

	if err := store.Save(blob); err != nil {
		t.Fatalf("second save: %v", err)
	}
	after, _ := os.Stat(path)

	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("saving identical bytes should not rewrite the file")
	}
}

func TestFileStoreDegraded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if store.Degraded() {
		t.Error("fresh store should not be degraded")
	}

	// Turn the target path into a directory so the write fails.
	if err := os.Mkdir(path, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := store.Save([]byte("blob")); err == nil {
		t.Fatal("expected save to fail")
	}
	if !store.Degraded() {
		t.Error("failed save should mark the store degraded")
	}

	// A later successful save clears the flag.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Save([]byte("blob")); err != nil {
		t.Fatalf("save after repair: %v", err)
	}
	if store.Degraded() {
		t.Error("successful save should clear the degraded flag")
	}
}

func TestNewFileStoreEmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("empty path should be rejected")
	}
}

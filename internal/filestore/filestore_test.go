package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store := New(dir)

	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff, 0x0a, 0x0d}
	path, err := store.Save(payload, "patents.xlsx")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != filepath.Join(dir, "patents.xlsx") {
		t.Fatalf("unexpected path %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("content mismatch: %v vs %v", got, payload)
	}
}

func TestSaveOverwritesSameName(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Save([]byte("first version, longer"), "a.xlsx"); err != nil {
		t.Fatalf("first save: %v", err)
	}
	path, err := store.Save([]byte("second"), "a.xlsx")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 1 {
		t.Fatalf("expected a single stored file, got %d", len(entries))
	}
}

func TestSaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	path, err := store.Save([]byte("x"), "../../etc/evil.xlsx")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("file escaped upload dir: %s", path)
	}
	if _, err := store.Save([]byte("x"), ".."); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestSavePropagatesWriteErrors(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	store := New(filepath.Join(blocker, "uploads"))
	if _, err := store.Save([]byte("x"), "a.xlsx"); err == nil {
		t.Fatalf("expected error when upload dir cannot be created")
	}
}

package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStore_HappyPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	id, err := store.StartMultipart(ctx, "00000-000.json")
	if err != nil {
		t.Fatalf("StartMultipart: %v", err)
	}

	p0, err := store.AddMultipart(ctx, "00000-000.json", id, PartSpec{Index: 0, Data: []byte("hello ")})
	if err != nil {
		t.Fatalf("AddMultipart(0): %v", err)
	}
	p1, err := store.AddMultipart(ctx, "00000-000.json", id, PartSpec{Index: 1, Data: []byte("world")})
	if err != nil {
		t.Fatalf("AddMultipart(1): %v", err)
	}

	if err := store.CloseMultipart(ctx, "00000-000.json", id, []string{p0.ContentID, p1.ContentID}); err != nil {
		t.Fatalf("CloseMultipart: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "00000-000.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("assembled contents = %q, want %q", data, "hello world")
	}

	if _, err := os.Stat(filepath.Join(dir, ".multipart-"+id)); !os.IsNotExist(err) {
		t.Error("expected staging directory to be removed after close")
	}
}

func TestLocalStore_OutOfOrderPartsAssembleCorrectly(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocalStore(dir)
	ctx := context.Background()

	id, _ := store.StartMultipart(ctx, "out-of-order.json")
	p1, _ := store.AddMultipart(ctx, "out-of-order.json", id, PartSpec{Index: 1, Data: []byte("B")})
	p0, _ := store.AddMultipart(ctx, "out-of-order.json", id, PartSpec{Index: 0, Data: []byte("A")})

	// CloseMultipart receives content ids in index order even though the
	// uploads themselves completed out of order.
	if err := store.CloseMultipart(ctx, "out-of-order.json", id, []string{p0.ContentID, p1.ContentID}); err != nil {
		t.Fatalf("CloseMultipart: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out-of-order.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "AB" {
		t.Errorf("assembled contents = %q, want AB", data)
	}
}

func TestLocalStore_DeleteIfPresentAbsorbsNotFound(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	if err := store.DeleteIfPresent(context.Background(), "missing.json"); err != nil {
		t.Errorf("expected not-found to be absorbed, got %v", err)
	}
}

func TestLocalStore_CanonicalURL(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocalStore(dir)
	got := store.CanonicalURL("x.json")
	want := "file://" + filepath.Join(dir, "x.json")
	if got != want {
		t.Errorf("CanonicalURL = %q, want %q", got, want)
	}
}

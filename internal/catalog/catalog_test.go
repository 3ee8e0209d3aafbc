// File path: internal/catalog/catalog_test.go
package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertAndGet(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	inserted, err := c.Insert(ctx, "sensors.csv", "hash-1", "data", 42)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted.ID == "" {
		t.Fatal("expected generated id")
	}
	got, err := c.Get(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Filename != "sensors.csv" || got.Hash != "hash-1" || got.Kind != "data" || got.Chunks != 42 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestInsertDuplicateHash(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	if _, err := c.Insert(ctx, "a.csv", "same-hash", "data", 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := c.Insert(ctx, "b.csv", "same-hash", "data", 1)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"first.txt", "second.txt"} {
		if _, err := c.Insert(ctx, name, "hash-"+name, "document", 1); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	files, err := c.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
}

func TestDelete(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	inserted, err := c.Insert(ctx, "doomed.txt", "hash-x", "document", 3)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Delete(ctx, inserted.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, inserted.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.Delete(ctx, inserted.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestHasHash(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	exists, err := c.HasHash(ctx, "missing")
	if err != nil {
		t.Fatalf("has hash: %v", err)
	}
	if exists {
		t.Fatal("unexpected hit for unknown hash")
	}
	if _, err := c.Insert(ctx, "a.txt", "known", "document", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	exists, err = c.HasHash(ctx, "known")
	if err != nil {
		t.Fatalf("has hash: %v", err)
	}
	if !exists {
		t.Fatal("expected hit for known hash")
	}
}

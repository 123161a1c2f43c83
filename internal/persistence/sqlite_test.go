package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"synthbot/internal/types"
)

func setupSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "positions.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, path
}

func TestSQLiteStore_PutGetRoundTrip(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	want := testPosition("sys-1")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "sys-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected position, got nil")
	}

	if got.Underlying != want.Underlying || got.Quantity != want.Quantity || got.Status != want.Status {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.Contract.Strike.Equal(want.Contract.Strike) {
		t.Errorf("strike = %s, want %s", got.Contract.Strike, want.Contract.Strike)
	}
	if !got.Contract.Expiry.Equal(want.Contract.Expiry) {
		t.Errorf("expiry = %s, want %s", got.Contract.Expiry, want.Contract.Expiry)
	}
	if !got.EnteredAt.Equal(want.EnteredAt) {
		t.Errorf("entered_at = %s, want %s", got.EnteredAt, want.EnteredAt)
	}
}

func TestSQLiteStore_GetAbsent(t *testing.T) {
	store, _ := setupSQLiteStore(t)

	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent id, got %+v", got)
	}
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	pos := testPosition("sys-roll")
	if err := store.Put(ctx, pos); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Rollover replaces the contract under the same system id.
	pos.Contract.CallSecurityID = "51001"
	pos.Contract.PutSecurityID = "51002"
	pos.Status = types.PositionOpen
	if err := store.Put(ctx, pos); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, _ := store.Get(ctx, "sys-roll")
	if got.Contract.CallSecurityID != "51001" {
		t.Errorf("call id = %s, want 51001", got.Contract.CallSecurityID)
	}

	all, _ := store.All(ctx)
	if len(all) != 1 {
		t.Errorf("replace created a second row: len = %d", len(all))
	}
}

func TestSQLiteStore_PutIfAbsent(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	inserted, err := store.PutIfAbsent(ctx, testPosition("sys-dup"))
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should succeed")
	}

	dup := testPosition("sys-dup")
	dup.Quantity = 150
	inserted, err = store.PutIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("second insert should be rejected")
	}

	got, _ := store.Get(ctx, "sys-dup")
	if got.Quantity != 75 {
		t.Errorf("original position was overwritten: qty = %d", got.Quantity)
	}
}

func TestSQLiteStore_DeleteAndAll(t *testing.T) {
	store, _ := setupSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Put(ctx, testPosition(id)); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "absent"); err != nil {
		t.Errorf("delete absent: %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if _, ok := all["b"]; !ok {
		t.Error("wrong position deleted")
	}
}

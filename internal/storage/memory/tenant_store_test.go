package memory

import (
	"context"
	"testing"
)

func TestTenantStore_EnsureIsIdempotent(t *testing.T) {
	store := NewTenantStore()
	ctx := context.Background()

	created, err := store.Ensure(ctx, "shop", 1000)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created {
		t.Error("first Ensure should create the tenant")
	}

	created, err = store.Ensure(ctx, "shop", 2000)
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if created {
		t.Error("second Ensure should be a no-op")
	}

	ok, _ := store.Exists(ctx, "shop")
	if !ok {
		t.Error("tenant should exist")
	}
	ok, _ = store.Exists(ctx, "missing")
	if ok {
		t.Error("unknown tenant should not exist")
	}
}

func TestTenantStore_List(t *testing.T) {
	store := NewTenantStore()
	ctx := context.Background()

	for _, id := range []string{"b.shop", "a.shop", "c.shop"} {
		if _, err := store.Ensure(ctx, id, 1); err != nil {
			t.Fatalf("Ensure failed: %v", err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "a.shop" || ids[2] != "c.shop" {
		t.Errorf("List = %v", ids)
	}
}

package assoc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/internal/storetest"
	"github.com/jacentio/spool/store"
)

func seedProduct(m *storetest.Memory, i int) string {
	sk := keys.ProductSK(gtin(i))
	m.Seed(store.TableKey(brandPK, sk))
	return sk
}

// --- Link Tests ---

func TestLink_New(t *testing.T) {
	m := storetest.New()
	seedLinked(m, "g0", 0)
	sk := seedProduct(m, 1)
	mt := newMaintainer(m, 1)

	if err := mt.Link(context.Background(), group("g1"), sk, map[string]any{"name": "Shoes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	product := m.Item(brandPK, sk)
	if store.StringAttr(product, "product_group") != "g1" {
		t.Errorf("expected product_group g1, got %v", product)
	}
	if store.StringAttr(product, "group_name") != "Shoes" {
		t.Errorf("expected group_name Shoes, got %v", product)
	}
	record := m.Item(brandPK, keys.AssociationSK("g1", sk))
	if record == nil {
		t.Fatal("expected association record")
	}
	if store.StringAttr(record, "datatype") != keys.DatatypeGroupMember {
		t.Errorf("expected member datatype, got %v", record["datatype"])
	}
	if store.StringAttr(record, "gtin") != gtin(1) || store.StringAttr(record, "group_id") != "g1" {
		t.Errorf("expected record attributes, got %v", record)
	}
	if brandCount(m) != 1 {
		t.Errorf("expected grouped_products 1, got %d", brandCount(m))
	}

	if err := mt.Link(context.Background(), group("g1"), sk, map[string]any{"name": "Shoes"}); err != nil {
		t.Fatalf("unexpected error on relink: %v", err)
	}
	if brandCount(m) != 1 {
		t.Errorf("expected relink to keep grouped_products 1, got %d", brandCount(m))
	}
}

func TestLink_Move(t *testing.T) {
	m := storetest.New()
	seedLinked(m, "g1", 1)
	sk := keys.ProductSK(gtin(0))

	if err := newMaintainer(m, 1).Link(context.Background(), group("g2"), sk, map[string]any{"name": "New"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Item(brandPK, keys.AssociationSK("g1", sk)) != nil {
		t.Error("expected old association record removed")
	}
	if m.Item(brandPK, keys.AssociationSK("g2", sk)) == nil {
		t.Error("expected new association record")
	}
	if brandCount(m) != 1 {
		t.Errorf("expected grouped_products unchanged at 1, got %d", brandCount(m))
	}
}

func TestLink_MissingChild(t *testing.T) {
	m := storetest.New()
	sk := keys.ProductSK(gtin(9))

	err := newMaintainer(m, 1).Link(context.Background(), group("g1"), sk, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if m.Item(brandPK, keys.AssociationSK("g1", sk)) != nil {
		t.Error("expected orphan association record removed")
	}
}

// --- Unlink Tests ---

func TestUnlink(t *testing.T) {
	m := storetest.New()
	seedLinked(m, "g1", 2)
	sk := keys.ProductSK(gtin(0))
	mt := newMaintainer(m, 1)

	removed, err := mt.Unlink(context.Background(), keys.DatatypeGroup, brandPK, sk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected link removed")
	}
	if m.Item(brandPK, keys.AssociationSK("g1", sk)) != nil {
		t.Error("expected association record removed")
	}
	if brandCount(m) != 1 {
		t.Errorf("expected grouped_products 1, got %d", brandCount(m))
	}

	removed, err = mt.Unlink(context.Background(), keys.DatatypeGroup, brandPK, sk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("expected second unlink to be a no-op")
	}
	if brandCount(m) != 1 {
		t.Errorf("expected grouped_products still 1, got %d", brandCount(m))
	}
}

func TestUnlink_MissingChild(t *testing.T) {
	m := storetest.New()

	_, err := newMaintainer(m, 1).Unlink(context.Background(), keys.DatatypeGroup, brandPK, keys.ProductSK(gtin(3)))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

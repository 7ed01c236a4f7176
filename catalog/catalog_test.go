package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/spool/catalog"
	"github.com/jacentio/spool/cursor"
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/internal/storetest"
	"github.com/jacentio/spool/store"
)

type queued struct {
	brand   string
	items   []catalog.Product
	attempt int
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []queued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, brand string, items []catalog.Product, attempt int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, queued{brand: brand, items: items, attempt: attempt})
	return nil
}

func newService(t *testing.T, m *storetest.Memory, q catalog.RetryQueue) *catalog.Service {
	t.Helper()
	codec, err := cursor.NewCodec([]byte("test-secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := catalog.DefaultConfig()
	cfg.PageLimit = 2
	cfg.Assoc.Concurrency = 1
	return catalog.NewService(m, codec, q, cfg, nil)
}

func gtin(i int) string {
	return fmt.Sprintf("%013d", i)
}

func products(n int) []catalog.Product {
	out := make([]catalog.Product, n)
	for i := range out {
		out[i] = catalog.Product{GTIN: gtin(i), Name: fmt.Sprintf("Product %d", i)}
	}
	return out
}

func seedBrand(m *storetest.Memory, id, name string) {
	item := store.TableKey(keys.BrandPK(id), keys.BrandSK)
	item["datatype"] = &types.AttributeValueMemberS{Value: keys.DatatypeBrand}
	item["name"] = &types.AttributeValueMemberS{Value: name}
	item["grouped_products"] = &types.AttributeValueMemberN{Value: "0"}
	m.Seed(item)
}

func brandCount(m *storetest.Memory, brand string) int64 {
	return store.NumberAttr(m.Item(keys.BrandPK(brand), keys.BrandSK), "grouped_products")
}

// --- Listing Tests ---

func TestListBrands_PagesWithCursor(t *testing.T) {
	m := storetest.New()
	for i := range 5 {
		seedBrand(m, fmt.Sprintf("b%d", i), fmt.Sprintf("Brand %d", i))
	}
	svc := newService(t, m, nil)
	ctx := context.Background()

	var ids []string
	lastKey := ""
	for range 10 {
		page, err := svc.ListBrands(ctx, lastKey)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, b := range page.Brands {
			ids = append(ids, b.ID)
		}
		if page.LastEvaluatedKey == "" {
			break
		}
		lastKey = page.LastEvaluatedKey
	}

	if fmt.Sprint(ids) != "[b0 b1 b2 b3 b4]" {
		t.Errorf("expected all brands in order, got %v", ids)
	}
}

func TestListProducts_BadCursorRestarts(t *testing.T) {
	m := storetest.New()
	svc := newService(t, m, nil)
	ctx := context.Background()
	if _, err := svc.SubmitProducts(ctx, "acme", products(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := svc.ListProducts(ctx, "acme", "garbage")
	if err != nil {
		t.Fatalf("expected bad cursor to be ignored, got %v", err)
	}
	if len(page.Products) != 2 || page.Products[0].GTIN != gtin(0) {
		t.Errorf("expected first page, got %v", page.Products)
	}
	if page.LastEvaluatedKey == "" {
		t.Fatal("expected a cursor for the next page")
	}

	page, err = svc.ListProducts(ctx, "acme", page.LastEvaluatedKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Products) != 1 || page.Products[0].GTIN != gtin(2) {
		t.Errorf("expected last product, got %v", page.Products)
	}
	if page.LastEvaluatedKey != "" {
		t.Errorf("expected no cursor on last page, got %q", page.LastEvaluatedKey)
	}
}

func TestListProducts_ForeignCursorRestarts(t *testing.T) {
	m := storetest.New()
	for i := range 3 {
		seedBrand(m, fmt.Sprintf("b%d", i), fmt.Sprintf("Brand %d", i))
	}
	svc := newService(t, m, nil)
	ctx := context.Background()
	for _, brand := range []string{"acme", "beta"} {
		if _, err := svc.SubmitProducts(ctx, brand, products(3)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	acme, err := svc.ListProducts(ctx, "acme", "")
	if err != nil || acme.LastEvaluatedKey == "" {
		t.Fatalf("expected first acme page with cursor, got %+v, %v", acme, err)
	}
	brands, err := svc.ListBrands(ctx, "")
	if err != nil || brands.LastEvaluatedKey == "" {
		t.Fatalf("expected first brand page with cursor, got %+v, %v", brands, err)
	}

	tests := []struct {
		name    string
		lastKey string
	}{
		{"other brand", acme.LastEvaluatedKey},
		{"other index", brands.LastEvaluatedKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListProducts(ctx, "beta", tt.lastKey)
			if err != nil {
				t.Fatalf("expected foreign cursor to be ignored, got %v", err)
			}
			if len(page.Products) != 2 || page.Products[0].GTIN != gtin(0) {
				t.Errorf("expected first beta page, got %v", page.Products)
			}
		})
	}
}

func TestListProducts_InvalidBrand(t *testing.T) {
	svc := newService(t, storetest.New(), nil)

	_, err := svc.ListProducts(context.Background(), "a#b", "")
	if !errors.Is(err, catalog.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInventory(t *testing.T) {
	m := storetest.New()
	seedBrand(m, "acme", "Acme")
	svc := newService(t, m, nil)
	ctx := context.Background()

	if _, err := svc.SubmitProducts(ctx, "acme", products(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, g := range []string{"g1", "g2"} {
		if err := svc.CreateGroup(ctx, "acme", catalog.Group{ID: g, Name: "Group " + g}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := svc.LinkProduct(ctx, "acme", gtin(1), "g1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv, err := svc.Inventory(ctx, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.Products) != 5 {
		t.Errorf("expected 5 products, got %d", len(inv.Products))
	}
	if len(inv.Groups) != 2 || inv.Groups["g2"].Name != "Group g2" {
		t.Errorf("expected 2 groups, got %v", inv.Groups)
	}
	// brand + 5 products + 2 groups + 1 association record
	if inv.Scanned != 9 {
		t.Errorf("expected 9 items scanned, got %d", inv.Scanned)
	}
}

func TestInventory_EmptyBrand(t *testing.T) {
	svc := newService(t, storetest.New(), nil)

	inv, err := svc.Inventory(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Products == nil || len(inv.Products) != 0 {
		t.Errorf("expected empty product list, got %v", inv.Products)
	}
}

// --- Submit / Import Tests ---

func TestSubmitProducts_Duplicates(t *testing.T) {
	m := storetest.New()
	svc := newService(t, m, nil)
	ctx := context.Background()

	if _, err := svc.SubmitProducts(ctx, "acme", products(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := svc.SubmitProducts(ctx, "acme", products(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Created) != 2 || len(res.Duplicates) != 3 || len(res.Failed) != 0 {
		t.Errorf("expected 2 created, 3 duplicates; got %+v", res)
	}
}

func TestSubmitProducts_Validation(t *testing.T) {
	svc := newService(t, storetest.New(), nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		products []catalog.Product
	}{
		{"empty", nil},
		{"short gtin", []catalog.Product{{GTIN: "123", Name: "x"}}},
		{"non-numeric gtin", []catalog.Product{{GTIN: "12345678abc", Name: "x"}}},
		{"missing name", []catalog.Product{{GTIN: gtin(1)}}},
		{"repeated gtin", []catalog.Product{{GTIN: gtin(1), Name: "a"}, {GTIN: gtin(1), Name: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitProducts(ctx, "acme", tt.products)
			if !errors.Is(err, catalog.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSubmitProducts_ThrottledItemsFail(t *testing.T) {
	m := storetest.New()
	m.Hook = func(op storetest.Op, _ int, key store.Key) error {
		if op == storetest.OpPut && store.StringAttr(key, store.AttrSK) == keys.ProductSK(gtin(2)) {
			return &types.ProvisionedThroughputExceededException{}
		}
		return nil
	}
	svc := newService(t, m, nil)

	res, err := svc.SubmitProducts(context.Background(), "acme", products(4))
	if err != nil {
		t.Fatalf("expected no error for retryable failure, got %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != gtin(2) {
		t.Errorf("expected %s failed, got %v", gtin(2), res.Failed)
	}
	if len(res.Created) != 3 {
		t.Errorf("expected 3 created, got %d", len(res.Created))
	}
}

func TestImportProducts_QueuesUnprocessed(t *testing.T) {
	m := storetest.New()
	m.Unprocessed = func(call int, reqs []types.WriteRequest) []types.WriteRequest {
		if call == 2 {
			return reqs[:4]
		}
		return nil
	}
	q := &fakeQueue{}
	svc := newService(t, m, q)

	res, err := svc.ImportProducts(context.Background(), "acme", products(57))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Written != 53 || res.Queued != 4 || len(res.Failed) != 0 {
		t.Errorf("expected 53 written, 4 queued; got %+v", res)
	}
	if m.Calls(storetest.OpBatch) != 3 {
		t.Errorf("expected 3 batch calls, got %d", m.Calls(storetest.OpBatch))
	}
	if len(q.sent) != 1 || q.sent[0].attempt != 1 || len(q.sent[0].items) != 4 {
		t.Fatalf("expected one queued group of 4 at attempt 1, got %+v", q.sent)
	}
	if q.sent[0].items[0].GTIN != gtin(25) {
		t.Errorf("expected first queued gtin %s, got %s", gtin(25), q.sent[0].items[0].GTIN)
	}
}

func TestImportProducts_NoQueueReportsFailed(t *testing.T) {
	m := storetest.New()
	m.Hook = func(op storetest.Op, call int, _ store.Key) error {
		if op == storetest.OpBatch && call == 1 {
			return &types.ProvisionedThroughputExceededException{}
		}
		return nil
	}
	svc := newService(t, m, nil)

	res, err := svc.ImportProducts(context.Background(), "acme", products(30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Failed) != 25 || res.Written != 5 {
		t.Errorf("expected 25 failed, 5 written; got %+v", res)
	}
}

func TestImportProducts_NonRetryableNotQueued(t *testing.T) {
	m := storetest.New()
	m.Hook = func(op storetest.Op, _ int, _ store.Key) error {
		if op == storetest.OpBatch {
			return &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
		}
		return nil
	}
	q := &fakeQueue{}
	svc := newService(t, m, q)

	res, err := svc.ImportProducts(context.Background(), "acme", products(30))
	if !store.IsNonRetryable(err) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if len(q.sent) != 0 {
		t.Errorf("expected nothing queued, got %d groups", len(q.sent))
	}
	if res.Queued != 0 || len(res.Failed) != 30 || res.Written != 0 {
		t.Errorf("expected 30 failed, none queued; got %+v", res)
	}
	if m.Calls(storetest.OpBatch) != 1 {
		t.Errorf("expected 1 batch call, got %d", m.Calls(storetest.OpBatch))
	}
}

func TestImportProducts_NonRetryableInventoryNotQueued(t *testing.T) {
	m := storetest.New()
	m.Hook = func(op storetest.Op, _ int, _ store.Key) error {
		if op == storetest.OpQuery {
			return &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no table"}
		}
		return nil
	}
	q := &fakeQueue{}
	svc := newService(t, m, q)

	res, err := svc.ImportProducts(context.Background(), "acme", products(3))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(q.sent) != 0 || len(res.Failed) != 3 {
		t.Errorf("expected 3 failed, none queued; got %+v", res)
	}
}

func TestImportProducts_KeepsLinks(t *testing.T) {
	m := storetest.New()
	seedBrand(m, "acme", "Acme")
	svc := newService(t, m, nil)
	ctx := context.Background()

	if _, err := svc.SubmitProducts(ctx, "acme", products(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreateGroup(ctx, "acme", catalog.Group{ID: "g1", Name: "Shoes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.LinkProduct(ctx, "acme", gtin(0), "g1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	renamed := products(2)
	renamed[0].Name = "Renamed"
	if _, err := svc.ImportProducts(ctx, "acme", renamed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := m.Item(keys.BrandPK("acme"), keys.ProductSK(gtin(0)))
	if store.StringAttr(item, "name") != "Renamed" {
		t.Errorf("expected name updated, got %q", store.StringAttr(item, "name"))
	}
	if store.StringAttr(item, "product_group") != "g1" || store.StringAttr(item, "group_name") != "Shoes" {
		t.Errorf("expected link preserved, got %v", item)
	}
}

// linkingStore links a product right before the first batch write.
type linkingStore struct {
	*storetest.Memory
	link func()
}

func (s *linkingStore) BatchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	if s.link != nil {
		link := s.link
		s.link = nil
		link()
	}
	return s.Memory.BatchWrite(ctx, requests)
}

func TestImportProducts_LinkDuringImportIsOverwritten(t *testing.T) {
	m := storetest.New()
	seedBrand(m, "acme", "Acme")
	ls := &linkingStore{Memory: m}
	codec, err := cursor.NewCodec([]byte("test-secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := catalog.NewService(ls, codec, nil, catalog.DefaultConfig(), nil)
	ctx := context.Background()

	if _, err := svc.SubmitProducts(ctx, "acme", products(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreateGroup(ctx, "acme", catalog.Group{ID: "g1", Name: "Shoes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ls.link = func() {
		if err := svc.LinkProduct(ctx, "acme", gtin(0), "g1"); err != nil {
			t.Errorf("unexpected link error: %v", err)
		}
	}

	if _, err := svc.ImportProducts(ctx, "acme", products(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := m.Item(keys.BrandPK("acme"), keys.ProductSK(gtin(0)))
	if _, ok := item["product_group"]; ok {
		t.Errorf("expected link read before the write to win, got %v", item)
	}
	if m.Count(keys.BrandPK("acme"), keys.AssociationPrefix("g1")) != 1 || brandCount(m, "acme") != 1 {
		t.Errorf("expected association record and count to stay, got %d and %d",
			m.Count(keys.BrandPK("acme"), keys.AssociationPrefix("g1")), brandCount(m, "acme"))
	}
}

// --- Group Tests ---

func TestCreateGroup_Exists(t *testing.T) {
	svc := newService(t, storetest.New(), nil)
	ctx := context.Background()
	g := catalog.Group{ID: "g1", Name: "Shoes"}

	if err := svc.CreateGroup(ctx, "acme", g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreateGroup(ctx, "acme", g); !errors.Is(err, catalog.ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestCreateGroup_ReservedID(t *testing.T) {
	m := storetest.New()
	svc := newService(t, m, nil)
	ctx := context.Background()

	for _, id := range []string{keys.DatatypeProduct, keys.DatatypeGroup, keys.DatatypeGroupMember, keys.DatatypeBrand} {
		err := svc.CreateGroup(ctx, "acme", catalog.Group{ID: id, Name: "Clash"})
		if !errors.Is(err, catalog.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %q, got %v", id, err)
		}
		if _, err := svc.ListGroupMembers(ctx, "acme", id, ""); !errors.Is(err, catalog.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput listing %q, got %v", id, err)
		}
	}
	if m.Count(keys.BrandPK("acme"), "") != 0 {
		t.Error("expected nothing written")
	}
}

func TestLinkProduct_MissingGroup(t *testing.T) {
	m := storetest.New()
	svc := newService(t, m, nil)
	ctx := context.Background()
	if _, err := svc.SubmitProducts(ctx, "acme", products(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := svc.LinkProduct(ctx, "acme", gtin(0), "nope")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	m := storetest.New()
	seedBrand(m, "acme", "Acme")
	svc := newService(t, m, nil)
	ctx := context.Background()

	if _, err := svc.SubmitProducts(ctx, "acme", products(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreateGroup(ctx, "acme", catalog.Group{ID: "g1", Name: "Shoes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range 4 {
		if err := svc.LinkProduct(ctx, "acme", gtin(i), "g1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if brandCount(m, "acme") != 4 {
		t.Fatalf("expected grouped_products 4, got %d", brandCount(m, "acme"))
	}

	page, err := svc.ListGroupMembers(ctx, "acme", "g1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Members) != 2 || page.LastEvaluatedKey == "" {
		t.Errorf("expected first page of 2 members with cursor, got %+v", page)
	}

	removed, err := svc.UnlinkProduct(ctx, "acme", gtin(3))
	if err != nil || !removed {
		t.Fatalf("expected unlink, got %v, %v", removed, err)
	}

	stats, err := svc.RenameGroup(ctx, "acme", "g1", "Boots")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Refreshed != 3 {
		t.Errorf("expected 3 refreshed, got %d", stats.Refreshed)
	}
	if got := store.StringAttr(m.Item(keys.BrandPK("acme"), keys.ProductSK(gtin(0))), "group_name"); got != "Boots" {
		t.Errorf("expected group_name Boots, got %q", got)
	}

	stats, err = svc.DeleteGroup(ctx, "acme", "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Unlinked != 3 {
		t.Errorf("expected 3 unlinked, got %d", stats.Unlinked)
	}
	if brandCount(m, "acme") != 0 {
		t.Errorf("expected grouped_products 0, got %d", brandCount(m, "acme"))
	}
	if m.Item(keys.BrandPK("acme"), keys.GroupSK("g1")) != nil {
		t.Error("expected group deleted")
	}

	stats, err = svc.DeleteGroup(ctx, "acme", "g1")
	if err != nil {
		t.Fatalf("unexpected error on repeat delete: %v", err)
	}
	if stats.Records != 0 {
		t.Errorf("expected nothing left to cascade, got %+v", stats)
	}
}

func TestRenameGroup_Missing(t *testing.T) {
	svc := newService(t, storetest.New(), nil)

	_, err := svc.RenameGroup(context.Background(), "acme", "g9", "x")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

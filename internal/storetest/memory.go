// Package storetest provides an in-memory catalog store for tests.
//
// Memory follows the store primitives closely enough for pagination and
// batch code: queries return pages of at most PageSize items in sort-key
// order with a continuation marker, conditional writes fail with
// store.ErrConditionFailed, calls on a done context fail with its error,
// and hooks inject failures per operation.
package storetest

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/spool/store"
)

// DefaultPageSize is the page size used when Memory.PageSize is zero.
const DefaultPageSize = 25

// Op names a store operation for hooks and call counts.
type Op string

// Operations.
const (
	OpQuery  Op = "query"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpBatch  Op = "batch"
)

// Memory is an in-memory store. The zero value is not usable; call New.
type Memory struct {
	// PageSize caps the items returned per query page.
	PageSize int

	// Hook runs before every operation with the 1-based call number of that
	// operation. A non-nil error fails the call without changing state.
	Hook func(op Op, call int, key store.Key) error

	// Unprocessed picks the requests of a BatchWrite call to leave unwritten.
	Unprocessed func(call int, requests []types.WriteRequest) []types.WriteRequest

	mu    sync.Mutex
	items map[string]store.Item
	calls map[Op]int
}

// New creates an empty Memory store.
func New() *Memory {
	return &Memory{
		items: make(map[string]store.Item),
		calls: make(map[Op]int),
	}
}

// Seed stores items unconditionally.
func (m *Memory) Seed(items ...store.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[itemKey(item)] = clone(item)
	}
}

// Item returns a copy of the item at pk/sk, or nil.
func (m *Memory) Item(pk, sk string) store.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[pk+"\x00"+sk]
	if !ok {
		return nil
	}
	return clone(item)
}

// Count returns the number of items in partition pk whose sort key begins with prefix.
func (m *Memory) Count(pk, prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, item := range m.items {
		if store.StringAttr(item, store.AttrPK) == pk && strings.HasPrefix(store.StringAttr(item, store.AttrSK), prefix) {
			n++
		}
	}
	return n
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ResetCalls zeroes all call counters.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[Op]int)
}

// begin fails on a done ctx, then counts the call and runs the hook.
// Callers hold m.mu.
func (m *Memory) begin(ctx context.Context, op Op, key store.Key) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.calls[op]++
	call := m.calls[op]
	if m.Hook != nil {
		if err := m.Hook(op, call, key); err != nil {
			return call, err
		}
	}
	return call, nil
}

// QueryPage returns the page of matching items after start.
func (m *Memory) QueryPage(ctx context.Context, in store.QueryInput, start store.Key) (store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.begin(ctx, OpQuery, start); err != nil {
		return store.Page{}, err
	}

	partitionAttr := in.PartitionAttr
	if partitionAttr == "" {
		partitionAttr = store.AttrPK
	}
	sortAttr := in.SortAttr
	if sortAttr == "" {
		sortAttr = store.AttrSK
	}

	var matched []store.Item
	for _, item := range m.items {
		if store.StringAttr(item, partitionAttr) != in.PartitionValue {
			continue
		}
		if _, ok := item[sortAttr]; !ok {
			continue
		}
		if !strings.HasPrefix(store.StringAttr(item, sortAttr), in.SortPrefix) {
			continue
		}
		matched = append(matched, item)
	}

	order := func(item store.Item) string {
		return store.StringAttr(item, sortAttr) + "\x00" + store.StringAttr(item, store.AttrPK) + "\x00" + store.StringAttr(item, store.AttrSK)
	}
	slices.SortFunc(matched, func(a, b store.Item) int {
		return strings.Compare(order(a), order(b))
	})
	if in.Descending {
		slices.Reverse(matched)
	}

	if len(start) > 0 {
		startOrder := order(start)
		i := slices.IndexFunc(matched, func(item store.Item) bool {
			if in.Descending {
				return order(item) < startOrder
			}
			return order(item) > startOrder
		})
		if i < 0 {
			matched = nil
		} else {
			matched = matched[i:]
		}
	}

	size := m.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if in.Limit > 0 && int(in.Limit) < size {
		size = int(in.Limit)
	}

	page := store.Page{Items: make([]store.Item, 0, min(size, len(matched)))}
	for _, item := range matched[:min(size, len(matched))] {
		page.Items = append(page.Items, clone(item))
	}
	if len(matched) > size {
		last := page.Items[len(page.Items)-1]
		next := store.TableKey(store.StringAttr(last, store.AttrPK), store.StringAttr(last, store.AttrSK))
		if in.IndexName != "" {
			next[partitionAttr] = last[partitionAttr]
			next[sortAttr] = last[sortAttr]
		}
		page.Next = next
	}
	return page, nil
}

// Get returns the item at key or store.ErrNotFound.
func (m *Memory) Get(ctx context.Context, key store.Key) (store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.begin(ctx, OpGet, key); err != nil {
		return nil, err
	}
	item, ok := m.items[itemKey(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(item), nil
}

// Put stores an item, honoring IfNotExists.
func (m *Memory) Put(ctx context.Context, p store.Put) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.begin(ctx, OpPut, p.Item); err != nil {
		return err
	}
	k := itemKey(p.Item)
	if _, exists := m.items[k]; exists && p.IfNotExists {
		return store.ErrConditionFailed
	}
	m.items[k] = clone(p.Item)
	return nil
}

// Update applies an update, honoring IfExists and IfEquals.
func (m *Memory) Update(ctx context.Context, u store.Update) (store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.begin(ctx, OpUpdate, u.Key); err != nil {
		return nil, err
	}
	if len(u.Set) == 0 && len(u.Add) == 0 && len(u.Remove) == 0 {
		return nil, fmt.Errorf("update %v: no attributes to change", u.Key)
	}

	k := itemKey(u.Key)
	current, exists := m.items[k]
	if u.IfExists && !exists {
		return nil, store.ErrConditionFailed
	}
	for name, want := range u.IfEquals {
		av, err := attributevalue.Marshal(want)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(current[name], av) {
			return nil, store.ErrConditionFailed
		}
	}

	next := clone(current)
	if next == nil {
		next = clone(u.Key)
	}
	old := store.Item{}
	touch := func(name string) {
		if v, ok := current[name]; ok {
			old[name] = v
		}
	}

	for name, value := range u.Set {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, err
		}
		touch(name)
		next[name] = av
	}
	for name, delta := range u.Add {
		touch(name)
		next[name] = &types.AttributeValueMemberN{Value: fmt.Sprint(store.NumberAttr(current, name) + delta)}
	}
	for _, name := range u.Remove {
		touch(name)
		delete(next, name)
	}

	m.items[k] = next
	if !u.ReturnOld {
		return nil, nil
	}
	return old, nil
}

// Delete removes the item at key if present.
func (m *Memory) Delete(ctx context.Context, key store.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.begin(ctx, OpDelete, key); err != nil {
		return err
	}
	delete(m.items, itemKey(key))
	return nil
}

// BatchWrite applies put and delete requests, leaving out those chosen by Unprocessed.
func (m *Memory) BatchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, err := m.begin(ctx, OpBatch, nil)
	if err != nil {
		return nil, err
	}
	if len(requests) > store.MaxBatchWrite {
		return nil, fmt.Errorf("%w: %d requests", store.ErrBatchTooLarge, len(requests))
	}

	var unprocessed []types.WriteRequest
	if m.Unprocessed != nil {
		unprocessed = m.Unprocessed(call, requests)
	}
	skip := make(map[int]bool, len(unprocessed))
	for _, i := range store.UnprocessedIndexes(requests, unprocessed) {
		skip[i] = true
	}

	for i, req := range requests {
		if skip[i] {
			continue
		}
		switch {
		case req.PutRequest != nil:
			m.items[itemKey(req.PutRequest.Item)] = clone(req.PutRequest.Item)
		case req.DeleteRequest != nil:
			delete(m.items, itemKey(req.DeleteRequest.Key))
		}
	}
	return unprocessed, nil
}

func itemKey(item store.Item) string {
	return store.StringAttr(item, store.AttrPK) + "\x00" + store.StringAttr(item, store.AttrSK)
}

func clone(item store.Item) store.Item {
	return maps.Clone(item)
}

package batch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/spool/store"
)

// BatchWriter is the store primitive behind grouped writes.
type BatchWriter interface {
	BatchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error)
}

// Puts is a GroupWriter that turns each item into a PutRequest.
type Puts[T any] struct {
	Writer BatchWriter

	// Item builds the stored item for v.
	Item func(v T) (store.Item, error)
}

// WriteGroup writes chunk in one BatchWrite call.
func (p Puts[T]) WriteGroup(ctx context.Context, chunk []T) ([]int, error) {
	requests := make([]types.WriteRequest, len(chunk))
	for i, v := range chunk {
		item, err := p.Item(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
		}
		requests[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}

	unprocessed, err := p.Writer.BatchWrite(ctx, requests)
	if err != nil {
		return nil, err
	}
	return store.UnprocessedIndexes(requests, unprocessed), nil
}

// ConditionalPuts is an ItemWriter that creates each item only if its key is free.
type ConditionalPuts[T any] struct {
	Writer interface {
		Put(ctx context.Context, p store.Put) error
	}

	// Item builds the stored item for v.
	Item func(v T) (store.Item, error)
}

// WriteItem puts v unless an item with the same key exists.
func (p ConditionalPuts[T]) WriteItem(ctx context.Context, v T) error {
	item, err := p.Item(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	return p.Writer.Put(ctx, store.Put{Item: item, IfNotExists: true})
}

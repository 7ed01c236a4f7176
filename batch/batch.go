// Package batch writes unbounded item sets against a store that caps the
// number of items per request.
//
// Items are split into chunks of ChunkSize. Every submitted item ends up in
// exactly one of three outcome sets: delivered, duplicate (a uniqueness
// precondition failed, the expected result for re-submitted work) or
// unprocessed (safe to retry later, for example through a retry queue).
package batch

import (
	"context"
	"errors"

	"github.com/jacentio/spool/store"
)

// ChunkSize is the number of items per write request. It equals the store's
// hard BatchWriteItem cap and is fixed for the whole system.
const ChunkSize = store.MaxBatchWrite

// ErrInvalidItem marks an item that cannot be turned into a write request.
// Retrying it would fail the same way.
var ErrInvalidItem = errors.New("spool: invalid batch item")

// Chunk splits items into consecutive slices of at most size items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = ChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// Result is the outcome of one reconciliation pass.
type Result[T any] struct {
	Delivered  []T
	Duplicates []T

	// Unprocessed holds the items to retry, grouped per chunk.
	Unprocessed [][]T
}

// UnprocessedItems flattens Unprocessed.
func (r Result[T]) UnprocessedItems() []T {
	var out []T
	for _, group := range r.Unprocessed {
		out = append(out, group...)
	}
	return out
}

// UnprocessedCount returns the number of unprocessed items.
func (r Result[T]) UnprocessedCount() int {
	n := 0
	for _, group := range r.Unprocessed {
		n += len(group)
	}
	return n
}

// Total returns the number of items accounted for.
func (r Result[T]) Total() int {
	return len(r.Delivered) + len(r.Duplicates) + r.UnprocessedCount()
}

// Complete reports whether nothing is left to retry.
func (r Result[T]) Complete() bool {
	return r.UnprocessedCount() == 0
}

func (r *Result[T]) addUnprocessed(items []T) {
	if len(items) > 0 {
		r.Unprocessed = append(r.Unprocessed, items)
	}
}

// GroupWriter writes one chunk as a single request and returns the indexes
// (into chunk) of the items the store did not durably write.
type GroupWriter[T any] interface {
	WriteGroup(ctx context.Context, chunk []T) ([]int, error)
}

// GroupWriterFunc adapts a function to GroupWriter.
type GroupWriterFunc[T any] func(ctx context.Context, chunk []T) ([]int, error)

// WriteGroup calls f.
func (f GroupWriterFunc[T]) WriteGroup(ctx context.Context, chunk []T) ([]int, error) {
	return f(ctx, chunk)
}

// ItemWriter writes one item with a uniqueness precondition. A failed
// precondition must be reported as store.ErrConditionFailed.
type ItemWriter[T any] interface {
	WriteItem(ctx context.Context, item T) error
}

// ItemWriterFunc adapts a function to ItemWriter.
type ItemWriterFunc[T any] func(ctx context.Context, item T) error

// WriteItem calls f.
func (f ItemWriterFunc[T]) WriteItem(ctx context.Context, item T) error {
	return f(ctx, item)
}

// IsNonRetryable reports whether err will fail the same way on every
// attempt: a non-retryable store error or an item that cannot be encoded.
func IsNonRetryable(err error) bool {
	return store.IsNonRetryable(err) || errors.Is(err, ErrInvalidItem)
}

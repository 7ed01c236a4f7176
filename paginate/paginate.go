// Package paginate drains paginated store queries into a single typed result.
//
// A fetch returns one Page: a value of the caller's accumulator type and the
// continuation marker of the next page. Walk visits pages in store order,
// always feeding a page's own marker into the next fetch. Collect folds the
// pages together with a Merger built from the reducers in this package.
package paginate

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/jacentio/spool/store"
)

// ErrNoProgress is returned when a page hands back the marker it was fetched
// with, which would otherwise loop forever.
var ErrNoProgress = errors.New("spool: pagination made no progress")

// Page is one fetched page.
type Page[T any] struct {
	Value T

	// Next is the marker of the following page, nil on the last page.
	Next store.Key
}

// FetchFunc fetches the page starting after start. A nil start fetches the first page.
type FetchFunc[T any] func(ctx context.Context, start store.Key) (Page[T], error)

// Merger folds the value of a later page into the running aggregate.
type Merger[T any] func(acc, page T) T

// Walk calls fetch until a page has no Next marker, passing each page to
// visit in order. Context cancellation is checked before every fetch. It
// returns the number of pages visited.
func Walk[T any](ctx context.Context, fetch FetchFunc[T], visit func(context.Context, Page[T]) error) (int, error) {
	var (
		start store.Key
		pages int
	)
	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		page, err := fetch(ctx, start)
		if err != nil {
			return pages, err
		}
		pages++

		if err := visit(ctx, page); err != nil {
			return pages, err
		}

		if len(page.Next) == 0 {
			return pages, nil
		}
		if start != nil && sameKey(start, page.Next) {
			return pages, ErrNoProgress
		}
		start = page.Next
	}
}

// Collect drains fetch into one value. Every page, the first included, is
// merged into an aggregate that starts as the zero value, so the reducers in
// this package never write into a page's own slices or maps.
func Collect[T any](ctx context.Context, fetch FetchFunc[T], merge Merger[T]) (T, error) {
	var acc T
	_, err := Walk(ctx, fetch, func(_ context.Context, page Page[T]) error {
		acc = merge(acc, page.Value)
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return acc, nil
}

// Concat appends the later page's elements after the aggregate's. A nil
// aggregate becomes a copy of page.
func Concat[E any](acc, page []E) []E {
	if acc == nil {
		return slices.Clone(page)
	}
	return append(acc, page...)
}

// MergeMaps copies the later page's entries into the aggregate. Keys present
// in both take the later page's value. A nil aggregate is allocated.
func MergeMaps[K comparable, V any](acc, page map[K]V) map[K]V {
	if acc == nil {
		acc = make(map[K]V, len(page))
	}
	maps.Copy(acc, page)
	return acc
}

// Latest keeps the later page's value.
func Latest[V any](_, page V) V {
	return page
}

// sameKey compares two markers by their string and number key attributes.
func sameKey(a, b store.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
		if store.StringAttr(a, name) != store.StringAttr(b, name) ||
			store.NumberAttr(a, name) != store.NumberAttr(b, name) {
			return false
		}
	}
	return true
}

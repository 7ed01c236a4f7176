package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/spool/store"
)

// errRemaining signals an inline attempt that left items unwritten.
var errRemaining = errors.New("spool: items remain unprocessed")

// Reconciler writes item sets chunk by chunk and classifies the outcomes.
type Reconciler[T any] struct {
	config Config
	logger *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler[T any](config Config, logger *slog.Logger) *Reconciler[T] {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler[T]{
		config: config,
		logger: logger,
	}
}

// WriteGrouped writes items one chunk per request, chunks in order.
//
// Items the store reports as not written are unprocessed. A retryable error
// on a chunk makes the whole chunk unprocessed and the pass continues. A
// non-retryable error is logged and returned, and that chunk and every chunk
// not yet sent are reported unprocessed.
func (r *Reconciler[T]) WriteGrouped(ctx context.Context, items []T, w GroupWriter[T]) (Result[T], error) {
	var res Result[T]
	chunks := Chunk(items, ChunkSize)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			for _, rest := range chunks[i:] {
				res.addUnprocessed(rest)
			}
			return res, err
		}

		delivered, remaining, err := r.writeChunk(ctx, chunk, w)
		res.Delivered = append(res.Delivered, delivered...)
		res.addUnprocessed(remaining)

		switch {
		case err != nil && IsNonRetryable(err):
			r.logger.Error("batch write failed",
				"chunk", i,
				"size", len(chunk),
				"error", err,
			)
			for _, rest := range chunks[i+1:] {
				res.addUnprocessed(rest)
			}
			return res, fmt.Errorf("write chunk %d: %w", i, err)
		case err != nil:
			r.logger.Warn("batch chunk unprocessed",
				"chunk", i,
				"unprocessed", len(remaining),
				"error", err,
			)
		case len(remaining) > 0:
			r.logger.Warn("batch chunk partially unprocessed",
				"chunk", i,
				"size", len(chunk),
				"unprocessed", len(remaining),
			)
		}
	}

	return res, nil
}

// writeChunk writes one chunk, retrying the unwritten remainder inline up to
// InlineAttempts times. It returns what was written and what is left.
func (r *Reconciler[T]) writeChunk(ctx context.Context, chunk []T, w GroupWriter[T]) ([]T, []T, error) {
	var (
		delivered []T
		remaining = chunk
	)

	attempt := func() (struct{}, error) {
		unprocessed, err := w.WriteGroup(ctx, remaining)
		if err != nil {
			if IsNonRetryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		written, left := split(remaining, unprocessed)
		delivered = append(delivered, written...)
		remaining = left
		if len(remaining) > 0 {
			return struct{}{}, errRemaining
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(r.config.InlinePolicy.backOff()),
		backoff.WithMaxTries(uint(r.config.InlineAttempts)),
	)
	if errors.Is(err, errRemaining) {
		err = nil
	}
	return delivered, remaining, err
}

// split partitions items into those not named by unprocessed and those named.
// Out-of-range indexes are ignored.
func split[T any](items []T, unprocessed []int) (written, left []T) {
	if len(unprocessed) == 0 {
		return items, nil
	}
	failed := make(map[int]bool, len(unprocessed))
	for _, i := range unprocessed {
		if i >= 0 && i < len(items) {
			failed[i] = true
		}
	}
	for i, item := range items {
		if failed[i] {
			left = append(left, item)
		} else {
			written = append(written, item)
		}
	}
	return written, left
}

// WriteConditional writes every item on its own with a uniqueness
// precondition. The items of a chunk are written concurrently and joined
// before the next chunk starts.
//
// A failed precondition makes the item a duplicate. Any other failure makes
// it unprocessed and is logged with the item. Non-retryable failures are
// returned joined, and the chunks not yet started are reported unprocessed.
func (r *Reconciler[T]) WriteConditional(ctx context.Context, items []T, w ItemWriter[T]) (Result[T], error) {
	var res Result[T]
	chunks := Chunk(items, ChunkSize)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			for _, rest := range chunks[i:] {
				res.addUnprocessed(rest)
			}
			return res, err
		}

		outcomes := make([]error, len(chunk))
		var g errgroup.Group
		g.SetLimit(ChunkSize)
		for j, item := range chunk {
			g.Go(func() error {
				outcomes[j] = w.WriteItem(ctx, item)
				return nil
			})
		}
		_ = g.Wait()

		var (
			failed []T
			fatal  []error
		)
		for j, err := range outcomes {
			item := chunk[j]
			switch {
			case err == nil:
				res.Delivered = append(res.Delivered, item)
			case store.IsConditionFailed(err):
				r.logger.Debug("duplicate item skipped", "item", item)
				res.Duplicates = append(res.Duplicates, item)
			default:
				r.logger.Error("item write failed",
					"chunk", i,
					"item", item,
					"error", err,
				)
				failed = append(failed, item)
				if IsNonRetryable(err) {
					fatal = append(fatal, err)
				}
			}
		}
		res.addUnprocessed(failed)

		if len(fatal) > 0 {
			for _, rest := range chunks[i+1:] {
				res.addUnprocessed(rest)
			}
			return res, errors.Join(fatal...)
		}
	}

	return res, nil
}

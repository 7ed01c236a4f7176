package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/jacentio/spool/batch"
	"github.com/jacentio/spool/store"
)

// SubmitProducts creates products that do not exist yet. Re-submitted
// products are reported as duplicates; products that could not be written
// are reported as failed. A non-retryable store error is also returned.
func (s *Service) SubmitProducts(ctx context.Context, brand string, products []Product) (SubmitResult, error) {
	if err := s.checkProducts(brand, products); err != nil {
		return SubmitResult{}, err
	}

	writer := batch.ConditionalPuts[Product]{
		Writer: s.store,
		Item:   productItem(brand, nil),
	}
	res, err := s.reconciler.WriteConditional(ctx, products, writer)

	out := SubmitResult{
		Created:    gtins(res.Delivered),
		Duplicates: gtins(res.Duplicates),
		Failed:     gtins(res.UnprocessedItems()),
	}
	s.logger.Info("products submitted",
		"brand", brand,
		"created", len(out.Created),
		"duplicates", len(out.Duplicates),
		"failed", len(out.Failed),
	)
	return out, err
}

// ImportProducts upserts products with grouped batch writes. Existing group
// links are carried over. Unprocessed products are handed to the retry queue
// unless the write failed with a non-retryable error, which is returned and
// leaves them failed.
func (s *Service) ImportProducts(ctx context.Context, brand string, products []Product) (ImportResult, error) {
	if err := s.checkProducts(brand, products); err != nil {
		return ImportResult{}, err
	}

	res, err := s.writeImport(ctx, brand, products)
	out := ImportResult{Written: len(res.Delivered)}
	fatal := batch.IsNonRetryable(err)

	for _, group := range res.Unprocessed {
		if fatal || s.queue == nil {
			out.Failed = append(out.Failed, gtins(group)...)
			continue
		}
		if qerr := s.queue.Enqueue(ctx, brand, group, 1); qerr != nil {
			s.logger.Error("failed to queue unprocessed products",
				"brand", brand,
				"gtins", gtins(group),
				"error", qerr,
			)
			out.Failed = append(out.Failed, gtins(group)...)
			continue
		}
		out.Queued += len(group)
	}

	s.logger.Info("products imported",
		"brand", brand,
		"written", out.Written,
		"queued", out.Queued,
		"failed", len(out.Failed),
	)
	return out, err
}

// Resubmit retries a queued import and returns what is still unprocessed.
func (s *Service) Resubmit(ctx context.Context, brand string, products []Product) ([][]Product, error) {
	res, err := s.writeImport(ctx, brand, products)
	return res.Unprocessed, err
}

// writeImport runs a grouped write of products, preserving current links.
func (s *Service) writeImport(ctx context.Context, brand string, products []Product) (batch.Result[Product], error) {
	inv, err := s.Inventory(ctx, brand)
	if err != nil {
		return batch.Result[Product]{Unprocessed: batch.Chunk(products, batch.ChunkSize)}, err
	}
	links := make(map[string]Product, len(inv.Products))
	for _, p := range inv.Products {
		if p.Group != "" {
			links[p.GTIN] = p
		}
	}

	writer := batch.Puts[Product]{
		Writer: s.store,
		Item:   productItem(brand, links),
	}
	return s.reconciler.WriteGrouped(ctx, products, writer)
}

// productItem returns the item builder for a brand's products. Links found
// in links replace the product's own group fields.
func productItem(brand string, links map[string]Product) func(Product) (store.Item, error) {
	return func(p Product) (store.Item, error) {
		p.Group, p.GroupName = "", ""
		if linked, ok := links[p.GTIN]; ok {
			p.Group, p.GroupName = linked.Group, linked.GroupName
		}
		item, err := attributevalue.MarshalMap(newProductRecord(brand, p))
		if err != nil {
			return nil, fmt.Errorf("marshal product %s: %w", p.GTIN, err)
		}
		return item, nil
	}
}

// checkProducts validates the brand and every product.
func (s *Service) checkProducts(brand string, products []Product) error {
	if err := s.checkID("brand", brand); err != nil {
		return err
	}
	if len(products) == 0 {
		return fmt.Errorf("%w: no products", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if err := s.checkStruct(p); err != nil {
			return fmt.Errorf("product %d: %w", i, err)
		}
		if seen[p.GTIN] {
			return fmt.Errorf("%w: duplicate gtin %s", ErrInvalidInput, p.GTIN)
		}
		seen[p.GTIN] = true
	}
	return nil
}

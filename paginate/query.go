package paginate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/jacentio/spool/store"
)

// Querier runs one page of a range query.
type Querier interface {
	QueryPage(ctx context.Context, in store.QueryInput, start store.Key) (store.Page, error)
}

// Query adapts a range query into a FetchFunc over raw items.
func Query(q Querier, in store.QueryInput) FetchFunc[[]store.Item] {
	return func(ctx context.Context, start store.Key) (Page[[]store.Item], error) {
		page, err := q.QueryPage(ctx, in, start)
		if err != nil {
			return Page[[]store.Item]{}, err
		}
		items := page.Items
		if items == nil {
			items = []store.Item{}
		}
		return Page[[]store.Item]{Value: items, Next: page.Next}, nil
	}
}

// QueryAs adapts a range query into a FetchFunc that unmarshals each item into E.
func QueryAs[E any](q Querier, in store.QueryInput) FetchFunc[[]E] {
	raw := Query(q, in)
	return func(ctx context.Context, start store.Key) (Page[[]E], error) {
		page, err := raw(ctx, start)
		if err != nil {
			return Page[[]E]{}, err
		}
		out := make([]E, 0, len(page.Value))
		if err := attributevalue.UnmarshalListOfMaps(page.Value, &out); err != nil {
			return Page[[]E]{}, fmt.Errorf("unmarshal page: %w", err)
		}
		return Page[[]E]{Value: out, Next: page.Next}, nil
	}
}

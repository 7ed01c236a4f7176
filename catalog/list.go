package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/jacentio/spool/cursor"
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/paginate"
	"github.com/jacentio/spool/store"
)

// ListBrands returns one page of brands from the datatype index. An invalid
// lastKey restarts from the first page.
func (s *Service) ListBrands(ctx context.Context, lastKey string) (BrandPage, error) {
	scope := cursor.Scope(s.config.DatatypeIndex, keys.DatatypeBrand, "")
	page, err := s.store.QueryPage(ctx, store.QueryInput{
		IndexName:      s.config.DatatypeIndex,
		PartitionAttr:  store.AttrDatatype,
		PartitionValue: keys.DatatypeBrand,
		Limit:          s.config.PageLimit,
	}, s.codec.Decode(lastKey, cursor.DatatypeKeys, scope))
	if err != nil {
		return BrandPage{}, fmt.Errorf("list brands: %w", err)
	}

	var records []brandRecord
	if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
		return BrandPage{}, fmt.Errorf("unmarshal brands: %w", err)
	}
	out := BrandPage{Brands: make([]Brand, 0, len(records))}
	for _, r := range records {
		r.Brand.ID, _ = keys.BrandID(r.PK)
		out.Brands = append(out.Brands, r.Brand)
	}

	out.LastEvaluatedKey, err = s.codec.Encode(page.Next, cursor.DatatypeKeys, scope)
	if err != nil {
		return BrandPage{}, err
	}
	return out, nil
}

// ListProducts returns one page of a brand's products.
func (s *Service) ListProducts(ctx context.Context, brand, lastKey string) (ProductPage, error) {
	if err := s.checkID("brand", brand); err != nil {
		return ProductPage{}, err
	}

	in := store.QueryInput{
		PartitionValue: keys.BrandPK(brand),
		SortPrefix:     keys.DatatypeProduct + keys.Separator,
		Limit:          s.config.PageLimit,
	}
	scope := cursor.Scope("", in.PartitionValue, in.SortPrefix)
	page, err := s.store.QueryPage(ctx, in, s.codec.Decode(lastKey, cursor.TableKeys, scope))
	if err != nil {
		return ProductPage{}, fmt.Errorf("list products of %s: %w", brand, err)
	}

	out := ProductPage{Products: make([]Product, 0, len(page.Items))}
	if err := attributevalue.UnmarshalListOfMaps(page.Items, &out.Products); err != nil {
		return ProductPage{}, fmt.Errorf("unmarshal products: %w", err)
	}
	out.LastEvaluatedKey, err = s.codec.Encode(page.Next, cursor.TableKeys, scope)
	if err != nil {
		return ProductPage{}, err
	}
	return out, nil
}

// ListGroupMembers returns one page of a group's association records.
func (s *Service) ListGroupMembers(ctx context.Context, brand, group, lastKey string) (MemberPage, error) {
	if err := s.checkID("brand", brand); err != nil {
		return MemberPage{}, err
	}
	if err := s.checkID("group", group); err != nil {
		return MemberPage{}, err
	}

	in := store.QueryInput{
		PartitionValue: keys.BrandPK(brand),
		SortPrefix:     keys.AssociationPrefix(group),
		Limit:          s.config.PageLimit,
	}
	scope := cursor.Scope("", in.PartitionValue, in.SortPrefix)
	page, err := s.store.QueryPage(ctx, in, s.codec.Decode(lastKey, cursor.TableKeys, scope))
	if err != nil {
		return MemberPage{}, fmt.Errorf("list members of %s/%s: %w", brand, group, err)
	}

	out := MemberPage{Members: make([]Member, 0, len(page.Items))}
	if err := attributevalue.UnmarshalListOfMaps(page.Items, &out.Members); err != nil {
		return MemberPage{}, fmt.Errorf("unmarshal members: %w", err)
	}
	out.LastEvaluatedKey, err = s.codec.Encode(page.Next, cursor.TableKeys, scope)
	if err != nil {
		return MemberPage{}, err
	}
	return out, nil
}

// Inventory drains the brand's partition into its products and groups.
func (s *Service) Inventory(ctx context.Context, brand string) (Inventory, error) {
	if err := s.checkID("brand", brand); err != nil {
		return Inventory{}, err
	}

	raw := paginate.Query(s.store, store.QueryInput{PartitionValue: keys.BrandPK(brand)})
	fetch := func(ctx context.Context, start store.Key) (paginate.Page[Inventory], error) {
		page, err := raw(ctx, start)
		if err != nil {
			return paginate.Page[Inventory]{}, err
		}
		inv, err := inventoryPage(page.Value)
		if err != nil {
			return paginate.Page[Inventory]{}, err
		}
		return paginate.Page[Inventory]{Value: inv, Next: page.Next}, nil
	}

	inv, err := paginate.Collect(ctx, fetch, mergeInventory)
	if err != nil {
		return Inventory{}, fmt.Errorf("inventory of %s: %w", brand, err)
	}
	return inv, nil
}

// inventoryPage sorts one page of partition items into products and groups.
func inventoryPage(items []store.Item) (Inventory, error) {
	inv := Inventory{
		Products: []Product{},
		Groups:   map[string]Group{},
		Scanned:  len(items),
	}
	for _, item := range items {
		sk := store.StringAttr(item, store.AttrSK)
		switch {
		case strings.HasPrefix(sk, keys.DatatypeProduct+keys.Separator):
			var p Product
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return Inventory{}, fmt.Errorf("unmarshal product %s: %w", sk, err)
			}
			inv.Products = append(inv.Products, p)
		case strings.HasPrefix(sk, keys.DatatypeGroup+keys.Separator):
			var g Group
			if err := attributevalue.UnmarshalMap(item, &g); err != nil {
				return Inventory{}, fmt.Errorf("unmarshal group %s: %w", sk, err)
			}
			inv.Groups[g.ID] = g
		}
	}
	return inv, nil
}

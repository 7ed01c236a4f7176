package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/jacentio/spool/assoc"
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/store"
)

// CreateGroup creates a product group.
func (s *Service) CreateGroup(ctx context.Context, brand string, g Group) error {
	if err := s.checkID("brand", brand); err != nil {
		return err
	}
	if err := s.checkStruct(g); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(groupRecord{
		PK:       keys.BrandPK(brand),
		SK:       keys.GroupSK(g.ID),
		Datatype: keys.DatatypeGroup,
		Group:    g,
	})
	if err != nil {
		return fmt.Errorf("marshal group: %w", err)
	}

	err = s.store.Put(ctx, store.Put{Item: item, IfNotExists: true})
	if errors.Is(err, store.ErrConditionFailed) {
		return fmt.Errorf("group %s: %w", g.ID, ErrExists)
	}
	return err
}

// LinkProduct adds a product to a group, moving it out of any previous group.
func (s *Service) LinkProduct(ctx context.Context, brand, gtin, group string) error {
	if err := s.checkID("brand", brand); err != nil {
		return err
	}
	if err := s.checkGTIN(gtin); err != nil {
		return err
	}
	if err := s.checkID("group", group); err != nil {
		return err
	}

	item, err := s.store.Get(ctx, store.TableKey(keys.BrandPK(brand), keys.GroupSK(group)))
	if err != nil {
		return fmt.Errorf("group %s: %w", group, err)
	}
	var g Group
	if err := attributevalue.UnmarshalMap(item, &g); err != nil {
		return fmt.Errorf("unmarshal group: %w", err)
	}

	err = s.maintainer.Link(ctx, GroupParent(brand, group), keys.ProductSK(gtin), map[string]any{"name": g.Name})
	if err != nil {
		return fmt.Errorf("product %s: %w", gtin, err)
	}
	return nil
}

// UnlinkProduct removes a product from its group. It reports whether the
// product was in a group.
func (s *Service) UnlinkProduct(ctx context.Context, brand, gtin string) (bool, error) {
	if err := s.checkID("brand", brand); err != nil {
		return false, err
	}
	if err := s.checkGTIN(gtin); err != nil {
		return false, err
	}

	removed, err := s.maintainer.Unlink(ctx, keys.DatatypeGroup, keys.BrandPK(brand), keys.ProductSK(gtin))
	if err != nil {
		return removed, fmt.Errorf("product %s: %w", gtin, err)
	}
	return removed, nil
}

// RenameGroup renames a group and refreshes the name copied onto its products.
func (s *Service) RenameGroup(ctx context.Context, brand, group, name string) (assoc.Stats, error) {
	if err := s.checkID("brand", brand); err != nil {
		return assoc.Stats{}, err
	}
	if err := s.checkID("group", group); err != nil {
		return assoc.Stats{}, err
	}
	if err := s.checkStruct(Group{ID: group, Name: name}); err != nil {
		return assoc.Stats{}, err
	}

	_, err := s.store.Update(ctx, store.Update{
		Key:      store.TableKey(keys.BrandPK(brand), keys.GroupSK(group)),
		Set:      map[string]any{"name": name},
		IfExists: true,
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return assoc.Stats{}, fmt.Errorf("group %s: %w", group, ErrNotFound)
	}
	if err != nil {
		return assoc.Stats{}, fmt.Errorf("rename group %s: %w", group, err)
	}

	return s.maintainer.CascadeRefresh(ctx, GroupParent(brand, group), map[string]any{"name": name})
}

// DeleteGroup deletes a group and unlinks all of its products. Deleting a
// missing group still runs the cascade, which completes an earlier
// interrupted deletion.
func (s *Service) DeleteGroup(ctx context.Context, brand, group string) (assoc.Stats, error) {
	if err := s.checkID("brand", brand); err != nil {
		return assoc.Stats{}, err
	}
	if err := s.checkID("group", group); err != nil {
		return assoc.Stats{}, err
	}

	if err := s.store.Delete(ctx, store.TableKey(keys.BrandPK(brand), keys.GroupSK(group))); err != nil {
		return assoc.Stats{}, fmt.Errorf("delete group %s: %w", group, err)
	}
	return s.maintainer.CascadeUnlink(ctx, GroupParent(brand, group))
}

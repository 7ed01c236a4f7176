package assoc

import (
	"context"
	"fmt"

	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/store"
)

// Link points the child at childSK to parent and copies the denormalized
// parent attributes onto it. A child linked to another parent is moved.
//
// The association record is written before the child so that a cascade can
// always find a linked child. Steps after the child update run to completion
// even if ctx is canceled. It returns store.ErrNotFound if the child does
// not exist.
func (m *Maintainer) Link(ctx context.Context, parent Parent, childSK string, attrs map[string]any) error {
	a, ok := m.registry.match(parent.Type, childSK)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrUnregistered, parent.Type, childSK)
	}

	rec, err := record(a, parent, childSK)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, store.Put{Item: rec}); err != nil {
		return fmt.Errorf("put association record: %w", err)
	}

	set := map[string]any{a.LinkAttr: parent.ID}
	for parentAttr, value := range attrs {
		if childAttr, ok := a.Denormalized[parentAttr]; ok {
			set[childAttr] = value
		}
	}
	old, err := m.store.Update(ctx, store.Update{
		Key:       store.TableKey(parent.PK, childSK),
		Set:       set,
		IfExists:  true,
		ReturnOld: true,
	})
	if store.IsConditionFailed(err) {
		if err := m.store.Delete(ctx, store.TableKey(parent.PK, keys.AssociationSK(parent.ID, childSK))); err != nil {
			m.logger.Warn("failed to delete orphan association record",
				"parentID", parent.ID,
				"child", childSK,
				"error", err,
			)
		}
		return fmt.Errorf("link %s: %w", childSK, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("link %s: %w", childSK, err)
	}
	ctx = context.WithoutCancel(ctx)

	previous := store.StringAttr(old, a.LinkAttr)
	if previous == parent.ID {
		return nil
	}
	if previous != "" {
		from := Parent{Type: parent.Type, PK: parent.PK, ID: previous}
		if err := m.store.Delete(ctx, store.TableKey(parent.PK, keys.AssociationSK(previous, childSK))); err != nil {
			return fmt.Errorf("delete previous association record: %w", err)
		}
		if err := m.applyDerived(ctx, a, from, -1); err != nil {
			return err
		}
	}

	m.logger.Debug("child linked",
		"parentType", parent.Type,
		"parentID", parent.ID,
		"child", childSK,
		"previous", previous,
	)
	return m.applyDerived(ctx, a, parent, 1)
}

// Unlink removes the link of the child at childSK to whichever parentType
// parent it points at. It reports whether a link was removed.
func (m *Maintainer) Unlink(ctx context.Context, parentType, pk, childSK string) (bool, error) {
	a, ok := m.registry.match(parentType, childSK)
	if !ok {
		return false, fmt.Errorf("%w: %s -> %s", ErrUnregistered, parentType, childSK)
	}

	old, err := m.store.Update(ctx, store.Update{
		Key:       store.TableKey(pk, childSK),
		Remove:    a.childAttrs(),
		IfExists:  true,
		ReturnOld: true,
	})
	if store.IsConditionFailed(err) {
		return false, fmt.Errorf("unlink %s: %w", childSK, store.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("unlink %s: %w", childSK, err)
	}

	previous := store.StringAttr(old, a.LinkAttr)
	if previous == "" {
		return false, nil
	}
	ctx = context.WithoutCancel(ctx)
	parent := Parent{Type: parentType, PK: pk, ID: previous}
	if err := m.store.Delete(ctx, store.TableKey(pk, keys.AssociationSK(previous, childSK))); err != nil {
		return true, fmt.Errorf("delete association record: %w", err)
	}
	return true, m.applyDerived(ctx, a, parent, -1)
}

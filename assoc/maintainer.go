// Package assoc keeps denormalized parent-child links consistent without
// transactions.
//
// A child links to a parent through an attribute holding the parent ID, and
// for every link an association record is stored in the child's partition
// under the sort key "<parentID>#<childSK>". Listing a parent's children is
// then a prefix query instead of an index scan.
//
// Every step is a plain conditional single-item write, so a crash can leave
// one side of a link updated and the other stale. Re-running any operation
// is always safe and converges the state.
package assoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/paginate"
	"github.com/jacentio/spool/store"
)

// ErrUnregistered is returned for a parent type with no registered associations.
var ErrUnregistered = errors.New("spool: no associations registered for parent type")

// Store is the subset of store primitives the Maintainer uses.
type Store interface {
	QueryPage(ctx context.Context, in store.QueryInput, start store.Key) (store.Page, error)
	Put(ctx context.Context, p store.Put) error
	Update(ctx context.Context, u store.Update) (store.Item, error)
	Delete(ctx context.Context, key store.Key) error
}

// Parent identifies a parent entity.
type Parent struct {
	// Type is the parent datatype.
	Type string

	// PK is the partition holding the parent's children and association records.
	PK string

	// ID is the parent identifier used in link attributes and association sort keys.
	ID string
}

// Stats summarizes one cascade.
type Stats struct {
	Pages   int
	Records int

	// Unlinked counts children whose link was removed by this run.
	Unlinked int

	// AlreadyUnlinked counts records whose child no longer pointed at the parent.
	AlreadyUnlinked int

	// Refreshed counts children updated by CascadeRefresh.
	Refreshed int

	// Skipped counts records that matched no registered association.
	Skipped int
}

// outcome is the result of processing one association record.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUnlinked
	outcomeAlreadyUnlinked
	outcomeRefreshed
)

// Maintainer walks association records and keeps children consistent with their parents.
type Maintainer struct {
	store    Store
	registry *Registry
	config   Config
	logger   *slog.Logger
}

// NewMaintainer creates a new Maintainer.
func NewMaintainer(s Store, registry *Registry, config Config, logger *slog.Logger) *Maintainer {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{
		store:    s,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// CascadeUnlink removes every child's link to parent. For each association
// record the child's link is removed only if it still points at parent, the
// derived update runs only if that removal applied, and then the record is
// deleted. A second run over the same state changes nothing.
func (m *Maintainer) CascadeUnlink(ctx context.Context, parent Parent) (Stats, error) {
	stats, err := m.walk(ctx, parent, func(ctx context.Context, a Association, record store.Key, childSK string) (outcome, error) {
		return m.unlinkRecord(ctx, parent, a, record, childSK)
	})
	if err != nil {
		return stats, fmt.Errorf("cascade unlink %s %s: %w", parent.Type, parent.ID, err)
	}

	m.logger.Info("cascade unlink completed",
		"parentType", parent.Type,
		"parentID", parent.ID,
		"pages", stats.Pages,
		"records", stats.Records,
		"unlinked", stats.Unlinked,
		"alreadyUnlinked", stats.AlreadyUnlinked,
	)
	return stats, nil
}

// CascadeRefresh copies changed parent attributes onto every child still
// linked to parent. attrs is keyed by parent attribute name; attributes with
// no denormalized copy are ignored.
func (m *Maintainer) CascadeRefresh(ctx context.Context, parent Parent, attrs map[string]any) (Stats, error) {
	stats, err := m.walk(ctx, parent, func(ctx context.Context, a Association, _ store.Key, childSK string) (outcome, error) {
		set := make(map[string]any)
		for parentAttr, value := range attrs {
			if childAttr, ok := a.Denormalized[parentAttr]; ok {
				set[childAttr] = value
			}
		}
		if len(set) == 0 {
			return outcomeSkipped, nil
		}

		_, err := m.store.Update(ctx, store.Update{
			Key:      store.TableKey(parent.PK, childSK),
			Set:      set,
			IfEquals: map[string]any{a.LinkAttr: parent.ID},
		})
		if store.IsConditionFailed(err) {
			return outcomeAlreadyUnlinked, nil
		}
		if err != nil {
			return outcomeSkipped, fmt.Errorf("refresh %s: %w", childSK, err)
		}
		return outcomeRefreshed, nil
	})
	if err != nil {
		return stats, fmt.Errorf("cascade refresh %s %s: %w", parent.Type, parent.ID, err)
	}

	m.logger.Info("cascade refresh completed",
		"parentType", parent.Type,
		"parentID", parent.ID,
		"records", stats.Records,
		"refreshed", stats.Refreshed,
	)
	return stats, nil
}

// recordFunc processes one association record.
type recordFunc func(ctx context.Context, a Association, record store.Key, childSK string) (outcome, error)

// walk visits every association record of parent page by page. Records of a
// page are processed with bounded concurrency and joined before the next
// page is fetched. The first failure stops the walk.
func (m *Maintainer) walk(ctx context.Context, parent Parent, fn recordFunc) (Stats, error) {
	var stats Stats
	if !m.registry.HasChildren(parent.Type) {
		return stats, fmt.Errorf("%w: %s", ErrUnregistered, parent.Type)
	}

	fetch := paginate.Query(m.store, store.QueryInput{
		PartitionValue: parent.PK,
		SortPrefix:     keys.AssociationPrefix(parent.ID),
		Limit:          m.config.PageLimit,
	})

	pages, err := paginate.Walk(ctx, fetch, func(ctx context.Context, page paginate.Page[[]store.Item]) error {
		outcomes := make([]outcome, len(page.Value))

		// A failure stops scheduling further records. Records already in
		// flight keep the caller's context so each finishes its steps.
		var (
			g       errgroup.Group
			stopped atomic.Bool
		)
		g.SetLimit(m.config.Concurrency)
		for i, record := range page.Value {
			if stopped.Load() || ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if stopped.Load() {
					return nil
				}
				sk := store.StringAttr(record, store.AttrSK)
				childSK, ok := keys.ChildSK(sk, parent.ID)
				if !ok {
					return nil
				}
				a, ok := m.registry.match(parent.Type, childSK)
				if !ok {
					m.logger.Warn("association record matches no registered child type",
						"parentType", parent.Type,
						"sk", sk,
					)
					return nil
				}
				o, err := fn(ctx, a, store.TableKey(parent.PK, sk), childSK)
				if err != nil {
					stopped.Store(true)
					return err
				}
				outcomes[i] = o
				return nil
			})
		}
		err := g.Wait()
		if err == nil {
			err = ctx.Err()
		}

		stats.Records += len(page.Value)
		for _, o := range outcomes {
			switch o {
			case outcomeUnlinked:
				stats.Unlinked++
			case outcomeAlreadyUnlinked:
				stats.AlreadyUnlinked++
			case outcomeRefreshed:
				stats.Refreshed++
			default:
				stats.Skipped++
			}
		}
		return err
	})
	stats.Pages = pages
	return stats, err
}

// unlinkRecord removes one child's link, applies the derived update when the
// removal applied, and deletes the association record. Once the link is
// removed the remaining steps run to completion even if ctx is canceled.
func (m *Maintainer) unlinkRecord(ctx context.Context, parent Parent, a Association, record store.Key, childSK string) (outcome, error) {
	result := outcomeUnlinked

	_, err := m.store.Update(ctx, store.Update{
		Key:      store.TableKey(parent.PK, childSK),
		Remove:   a.childAttrs(),
		IfEquals: map[string]any{a.LinkAttr: parent.ID},
	})
	switch {
	case store.IsConditionFailed(err):
		result = outcomeAlreadyUnlinked
	case err != nil:
		return outcomeSkipped, fmt.Errorf("unlink %s: %w", childSK, err)
	default:
		ctx = context.WithoutCancel(ctx)
		if err := m.applyDerived(ctx, a, parent, -1); err != nil {
			return outcomeSkipped, err
		}
	}

	if err := m.store.Delete(ctx, record); err != nil {
		return outcomeSkipped, fmt.Errorf("delete association record %s: %w", store.StringAttr(record, store.AttrSK), err)
	}
	return result, nil
}

// applyDerived runs the association's derived update for parent, if any.
func (m *Maintainer) applyDerived(ctx context.Context, a Association, parent Parent, delta int64) error {
	if a.Derived == nil {
		return nil
	}
	u, ok := a.Derived(parent, delta)
	if !ok {
		return nil
	}
	if _, err := m.store.Update(ctx, u); err != nil {
		return fmt.Errorf("derived update for %s %s: %w", parent.Type, parent.ID, err)
	}
	return nil
}

// record builds the association record linking childSK to parent.
func record(a Association, parent Parent, childSK string) (store.Item, error) {
	item := store.TableKey(parent.PK, keys.AssociationSK(parent.ID, childSK))
	item[store.AttrDatatype] = &types.AttributeValueMemberS{Value: a.RecordType}
	if a.RecordAttrs == nil {
		return item, nil
	}
	for name, value := range a.RecordAttrs(parent, childSK) {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal association attribute %s: %w", name, err)
		}
		item[name] = av
	}
	return item, nil
}

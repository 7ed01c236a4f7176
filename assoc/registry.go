package assoc

import (
	"maps"
	"slices"
	"strings"

	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/store"
)

// Association defines a parent-child link kept consistent by the Maintainer.
type Association struct {
	// ParentType is the parent datatype (e.g., "product-group").
	ParentType string

	// ChildType is the child datatype and sort-key prefix (e.g., "brand-product").
	ChildType string

	// RecordType is the datatype of the association records (e.g., "product-group-member").
	RecordType string

	// LinkAttr is the child attribute holding the parent ID (e.g., "product_group").
	LinkAttr string

	// Denormalized maps parent attributes to the child attributes that copy
	// them (e.g., "name" -> "group_name").
	Denormalized map[string]string

	// RecordAttrs returns extra attributes stored on an association record.
	RecordAttrs func(parent Parent, childSK string) map[string]any

	// Derived returns the update that keeps a derived parent-side field in
	// step when a child is linked (delta +1) or unlinked (delta -1).
	Derived func(parent Parent, delta int64) (store.Update, bool)
}

// owns reports whether childSK is a child of this association.
func (a Association) owns(childSK string) bool {
	return strings.HasPrefix(childSK, a.ChildType+keys.Separator)
}

// childAttrs returns the child attributes removed on unlink.
func (a Association) childAttrs() []string {
	return append([]string{a.LinkAttr}, slices.Sorted(maps.Values(a.Denormalized))...)
}

// Registry holds all known associations.
type Registry struct {
	associations []Association
	byParent     map[string][]Association
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		associations: []Association{},
		byParent:     make(map[string][]Association),
	}
}

// Register adds an association to the registry.
func (r *Registry) Register(a Association) {
	r.associations = append(r.associations, a)
	r.byParent[a.ParentType] = append(r.byParent[a.ParentType], a)
}

// ChildrenOf returns all associations of a parent type.
func (r *Registry) ChildrenOf(parentType string) []Association {
	return r.byParent[parentType]
}

// All returns all registered associations.
func (r *Registry) All() []Association {
	return r.associations
}

// HasChildren returns true if the parent type has any registered associations.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}

// match returns the association of parentType owning childSK.
func (r *Registry) match(parentType, childSK string) (Association, bool) {
	for _, a := range r.byParent[parentType] {
		if a.owns(childSK) {
			return a, true
		}
	}
	return Association{}, false
}

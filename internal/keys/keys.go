// Package keys builds and parses the partition and sort keys of the catalog table.
package keys

import "strings"

// Datatype discriminators stored on every item.
const (
	DatatypeBrand       = "brand"
	DatatypeProduct     = "brand-product"
	DatatypeGroup       = "product-group"
	DatatypeGroupMember = "product-group-member"
)

// Reserved reports whether id is a datatype used as a sort-key namespace.
// An association prefix built from such an id would cover other items.
func Reserved(id string) bool {
	switch id {
	case DatatypeBrand, DatatypeProduct, DatatypeGroup, DatatypeGroupMember:
		return true
	}
	return false
}

// Separator joins key segments.
const Separator = "#"

// BrandSK is the sort key of a brand's own item.
const BrandSK = "brand"

// BrandPK returns the partition key shared by a brand and everything it owns.
func BrandPK(brand string) string {
	return "brand" + Separator + brand
}

// ProductSK returns the sort key of a brand product.
func ProductSK(gtin string) string {
	return DatatypeProduct + Separator + gtin
}

// GroupSK returns the sort key of a product group.
func GroupSK(group string) string {
	return DatatypeGroup + Separator + group
}

// AssociationPrefix returns the sort-key prefix shared by every association record
// of a parent. The trailing separator keeps "g1#" from matching "g10#...".
func AssociationPrefix(parentID string) string {
	return parentID + Separator
}

// AssociationSK returns the sort key of the association record linking childSK to parentID,
// e.g. "g1#brand-product#0123456789012".
func AssociationSK(parentID, childSK string) string {
	return AssociationPrefix(parentID) + childSK
}

// ChildSK strips the parent prefix from an association sort key. It reports false
// when the sort key does not belong to parentID or nothing remains after the prefix.
func ChildSK(associationSK, parentID string) (string, bool) {
	prefix := AssociationPrefix(parentID)
	if !strings.HasPrefix(associationSK, prefix) {
		return "", false
	}
	child := associationSK[len(prefix):]
	if child == "" {
		return "", false
	}
	return child, true
}

// GTIN extracts the GTIN from a product sort key.
func GTIN(productSK string) (string, bool) {
	prefix := DatatypeProduct + Separator
	if !strings.HasPrefix(productSK, prefix) || len(productSK) == len(prefix) {
		return "", false
	}
	return productSK[len(prefix):], true
}

// BrandID extracts the brand identifier from a brand partition key.
func BrandID(pk string) (string, bool) {
	prefix := "brand" + Separator
	if !strings.HasPrefix(pk, prefix) || len(pk) == len(prefix) {
		return "", false
	}
	return pk[len(prefix):], true
}

package catalog

import (
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/paginate"
)

// Brand is a brand summary.
type Brand struct {
	ID              string `dynamodbav:"-" json:"id"`
	Name            string `dynamodbav:"name" json:"name"`
	GroupedProducts int64  `dynamodbav:"grouped_products" json:"grouped_products"`
}

// Product is a brand product identified by its GTIN.
type Product struct {
	GTIN      string `dynamodbav:"gtin" json:"gtin" validate:"required,numeric,min=8,max=14"`
	Name      string `dynamodbav:"name" json:"name" validate:"required,max=256"`
	Group     string `dynamodbav:"product_group,omitempty" json:"product_group,omitempty" validate:"-"`
	GroupName string `dynamodbav:"group_name,omitempty" json:"group_name,omitempty" validate:"-"`
}

// Group is a product group within a brand.
type Group struct {
	ID   string `dynamodbav:"group_id" json:"id" validate:"required,max=64,excludesall=#,notreserved"`
	Name string `dynamodbav:"name" json:"name" validate:"required,max=256"`
}

// Member is one entry of a group's member list.
type Member struct {
	GroupID string `dynamodbav:"group_id" json:"group_id"`
	GTIN    string `dynamodbav:"gtin" json:"gtin"`
}

// BrandPage is one page of brands.
type BrandPage struct {
	Brands           []Brand `json:"brands"`
	LastEvaluatedKey string  `json:"last_evaluated_key,omitempty"`
}

// ProductPage is one page of a brand's products.
type ProductPage struct {
	Products         []Product `json:"products"`
	LastEvaluatedKey string    `json:"last_evaluated_key,omitempty"`
}

// MemberPage is one page of a group's members.
type MemberPage struct {
	Members          []Member `json:"members"`
	LastEvaluatedKey string   `json:"last_evaluated_key,omitempty"`
}

// Inventory is everything stored under one brand.
type Inventory struct {
	Products []Product        `json:"products"`
	Groups   map[string]Group `json:"groups"`
	Scanned  int              `json:"scanned"`
}

// mergeInventory folds a later page into the aggregate.
func mergeInventory(acc, page Inventory) Inventory {
	return Inventory{
		Products: paginate.Concat(acc.Products, page.Products),
		Groups:   paginate.MergeMaps(acc.Groups, page.Groups),
		Scanned:  acc.Scanned + page.Scanned,
	}
}

// SubmitResult reports a per-item conditional submission.
type SubmitResult struct {
	Created    []string `json:"created"`
	Duplicates []string `json:"duplicates"`
	Failed     []string `json:"failed"`
}

// ImportResult reports a grouped import.
type ImportResult struct {
	Written int      `json:"written"`
	Queued  int      `json:"queued"`
	Failed  []string `json:"failed,omitempty"`
}

// Stored item layouts.
type brandRecord struct {
	PK string `dynamodbav:"pk"`
	Brand
}

type productRecord struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	Datatype string `dynamodbav:"datatype"`
	Product
}

type groupRecord struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	Datatype string `dynamodbav:"datatype"`
	Group
}

func newProductRecord(brand string, p Product) productRecord {
	return productRecord{
		PK:       keys.BrandPK(brand),
		SK:       keys.ProductSK(p.GTIN),
		Datatype: keys.DatatypeProduct,
		Product:  p,
	}
}

func gtins(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.GTIN
	}
	return out
}

package store

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key attribute names of the catalog table and its datatype index.
const (
	AttrPK       = "pk"
	AttrSK       = "sk"
	AttrDatatype = "datatype"
)

// Key is a primary key or a continuation marker (LastEvaluatedKey).
type Key = map[string]types.AttributeValue

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

// Client is the subset of *dynamodb.Client used by the Store.
type Client interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// QueryInput describes a range query: equality on the partition key and an
// optional begins_with on the sort key. Page size is left to the store.
type QueryInput struct {
	// IndexName is the optional GSI to query.
	IndexName string

	// PartitionAttr is the partition key attribute. Default: "pk".
	PartitionAttr string

	// PartitionValue is matched with equality.
	PartitionValue string

	// SortAttr is the sort key attribute. Default: "sk".
	SortAttr string

	// SortPrefix restricts results to sort keys beginning with this value.
	SortPrefix string

	// Limit caps the items evaluated per page (0 = store default).
	Limit int32

	// Descending reverses the sort order.
	Descending bool
}

// Page is one page of query results.
type Page struct {
	Items []Item

	// Next is the continuation marker, nil on the last page.
	Next Key
}

// Put is a single-item write.
type Put struct {
	Item Item

	// IfNotExists makes the write fail with ErrConditionFailed when an item
	// with the same key already exists.
	IfNotExists bool
}

// Update is a single-item update. Values are plain Go values marshaled with attributevalue.
type Update struct {
	Key Key

	// Set assigns attributes.
	Set map[string]any

	// Remove deletes attributes.
	Remove []string

	// Add increments (or decrements) numeric attributes.
	Add map[string]int64

	// IfExists requires the item to exist.
	IfExists bool

	// IfEquals requires each attribute to currently hold the given value.
	IfEquals map[string]any

	// ReturnOld returns the updated attributes as they were before the update.
	ReturnOld bool
}

// StringAttr extracts a string attribute, or "" when absent or of another type.
func StringAttr(item Item, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// NumberAttr extracts a numeric attribute, or 0 when absent or unparseable.
func NumberAttr(item Item, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

// TableKey builds a pk/sk primary key.
func TableKey(pk, sk string) Key {
	return Key{
		AttrPK: &types.AttributeValueMemberS{Value: pk},
		AttrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

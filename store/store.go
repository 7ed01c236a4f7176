package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxBatchWrite is the hard per-request item cap of BatchWriteItem.
const MaxBatchWrite = 25

// Store provides the catalog table primitives.
type Store struct {
	client Client
	config Config
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// TableName returns the configured table name.
func (s *Store) TableName() string {
	return s.config.TableName
}

// DatatypeIndex returns the configured datatype GSI name.
func (s *Store) DatatypeIndex() string {
	return s.config.DatatypeIndex
}

// QueryPage fetches a single page of a range query starting after start.
// The returned Page.Next is nil when no more pages exist.
func (s *Store) QueryPage(ctx context.Context, in QueryInput, start Key) (Page, error) {
	params, err := s.buildQuery(in)
	if err != nil {
		return Page{}, err
	}
	if len(start) > 0 {
		params.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, params)
	if err != nil {
		return Page{}, fmt.Errorf("query %s: %w", in.PartitionValue, err)
	}

	page := Page{Items: out.Items}
	if len(out.LastEvaluatedKey) > 0 {
		page.Next = out.LastEvaluatedKey
	}
	return page, nil
}

// buildQuery translates a QueryInput into a DynamoDB query request.
func (s *Store) buildQuery(in QueryInput) (*dynamodb.QueryInput, error) {
	partitionAttr := in.PartitionAttr
	if partitionAttr == "" {
		partitionAttr = AttrPK
	}
	sortAttr := in.SortAttr
	if sortAttr == "" {
		sortAttr = AttrSK
	}

	keyCond := expression.Key(partitionAttr).Equal(expression.Value(in.PartitionValue))
	if in.SortPrefix != "" {
		keyCond = keyCond.And(expression.Key(sortAttr).BeginsWith(in.SortPrefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	params := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!in.Descending),
	}
	if in.IndexName != "" {
		params.IndexName = aws.String(in.IndexName)
	}
	if in.Limit > 0 {
		params.Limit = aws.Int32(in.Limit)
	}
	return params, nil
}

// Get retrieves an item by key, returning ErrNotFound if missing.
func (s *Store) Get(ctx context.Context, key Key) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

// Put writes a single item. With IfNotExists it returns ErrConditionFailed
// when the key is already taken.
func (s *Store) Put(ctx context.Context, p Put) error {
	params := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      p.Item,
	}
	if p.IfNotExists {
		expr, err := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name(AttrPK))).
			Build()
		if err != nil {
			return fmt.Errorf("build put condition: %w", err)
		}
		params.ConditionExpression = expr.Condition()
		params.ExpressionAttributeNames = expr.Names()
	}

	_, err := s.client.PutItem(ctx, params)
	return mapConditionError(err)
}

// Update applies a single-item update, returning ErrConditionFailed when a
// precondition was not met. With ReturnOld the pre-update values of the
// touched attributes are returned.
func (s *Store) Update(ctx context.Context, u Update) (Item, error) {
	params, err := s.buildUpdate(u)
	if err != nil {
		return nil, err
	}

	out, err := s.client.UpdateItem(ctx, params)
	if err != nil {
		return nil, mapConditionError(err)
	}
	return out.Attributes, nil
}

// buildUpdate translates an Update into a DynamoDB update request.
func (s *Store) buildUpdate(u Update) (*dynamodb.UpdateItemInput, error) {
	var (
		update   expression.UpdateBuilder
		cond     expression.ConditionBuilder
		hasCond  bool
		hasWrite bool
	)

	for name, value := range u.Set {
		update = update.Set(expression.Name(name), expression.Value(value))
		hasWrite = true
	}
	for name, delta := range u.Add {
		update = update.Add(expression.Name(name), expression.Value(delta))
		hasWrite = true
	}
	for _, name := range u.Remove {
		update = update.Remove(expression.Name(name))
		hasWrite = true
	}
	if !hasWrite {
		return nil, fmt.Errorf("update %v: no attributes to change", u.Key)
	}

	addCond := func(c expression.ConditionBuilder) {
		if hasCond {
			cond = cond.And(c)
		} else {
			cond = c
			hasCond = true
		}
	}
	if u.IfExists {
		addCond(expression.AttributeExists(expression.Name(AttrPK)))
	}
	for name, value := range u.IfEquals {
		addCond(expression.Name(name).Equal(expression.Value(value)))
	}

	builder := expression.NewBuilder().WithUpdate(update)
	if hasCond {
		builder = builder.WithCondition(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build update expression: %w", err)
	}

	params := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       u.Key,
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if hasCond {
		params.ConditionExpression = expr.Condition()
	}
	if u.ReturnOld {
		params.ReturnValues = types.ReturnValueUpdatedOld
	}
	return params, nil
}

// Delete removes an item. Deleting a missing item is not an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       key,
	})
	return err
}

// BatchWrite submits up to MaxBatchWrite put/delete requests in one call and
// returns the requests the store did not durably apply.
func (s *Store) BatchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if len(requests) > MaxBatchWrite {
		return nil, fmt.Errorf("%w: %d requests", ErrBatchTooLarge, len(requests))
	}

	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			s.config.TableName: requests,
		},
	})
	if err != nil {
		return nil, err
	}
	return out.UnprocessedItems[s.config.TableName], nil
}

// UnprocessedIndexes maps unprocessed write requests back to their positions
// in sent, matching on the pk/sk of the put item or delete key.
func UnprocessedIndexes(sent, unprocessed []types.WriteRequest) []int {
	if len(unprocessed) == 0 {
		return nil
	}

	pending := make(map[string]int, len(unprocessed))
	for _, req := range unprocessed {
		pending[requestKey(req)]++
	}

	var indexes []int
	for i, req := range sent {
		k := requestKey(req)
		if pending[k] > 0 {
			pending[k]--
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// requestKey renders the primary key targeted by a write request.
func requestKey(req types.WriteRequest) string {
	var key Key
	switch {
	case req.PutRequest != nil:
		key = req.PutRequest.Item
	case req.DeleteRequest != nil:
		key = req.DeleteRequest.Key
	}
	return StringAttr(key, AttrPK) + "\x00" + StringAttr(key, AttrSK)
}

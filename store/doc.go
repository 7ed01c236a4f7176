// Package store is the DynamoDB access layer for the single-table catalog.
//
// Every item lives in one table keyed by pk/sk and is discriminated by a
// datatype attribute and sort-key prefix conventions. The package exposes
// only the primitives the rest of the system builds on:
//
//   - [Store.QueryPage] - one page of a range query plus its continuation marker
//   - [Store.BatchWrite] - a bounded batch write reporting unprocessed requests
//   - [Store.Put] and [Store.Update] - single-item writes with optional preconditions
//   - [Store.Get] and [Store.Delete]
//
// Nothing here paginates, retries, or fans out. Those concerns belong to the
// paginate, batch and assoc packages, which consume these primitives.
//
// # Configuration
//
// Use [DefaultConfig] and override the table and index names:
//
//	cfg := store.DefaultConfig()
//	cfg.TableName = os.Getenv("TABLE_NAME")
//	s := store.New(dynamodb.NewFromConfig(awsCfg), cfg)
//
// # Errors
//
//   - [ErrNotFound] - the item does not exist
//   - [ErrConditionFailed] - a write precondition was not met
//   - [ErrBatchTooLarge] - more than [MaxBatchWrite] requests in one call
//
// [IsRetryable] and [IsNonRetryable] classify raw service errors.
package store

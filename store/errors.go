package store

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("spool: item not found")

	// ErrConditionFailed is returned when a write precondition was not met.
	// For create-if-absent writes this means the item already exists.
	ErrConditionFailed = errors.New("spool: condition check failed")

	// ErrBatchTooLarge is returned when a batch write carries more than MaxBatchWrite requests.
	ErrBatchTooLarge = errors.New("spool: batch exceeds store request limit")
)

// nonRetryableCodes are service error codes that will fail the same way on every attempt.
var nonRetryableCodes = map[string]bool{
	"AccessDeniedException":       true,
	"ValidationException":         true,
	"ResourceNotFoundException":   true,
	"UnrecognizedClientException": true,
	"SerializationException":      true,
}

// IsConditionFailed reports whether err is a failed write precondition.
func IsConditionFailed(err error) bool {
	if errors.Is(err, ErrConditionFailed) {
		return true
	}
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// IsNonRetryable reports whether err will fail again if retried unchanged:
// permission, validation and missing-table errors, and caller cancellation.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrBatchTooLarge) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return nonRetryableCodes[ae.ErrorCode()]
	}
	return false
}

// IsRetryable reports whether err is a transient failure: throttling, partial
// service failure, timeouts or transport errors.
func IsRetryable(err error) bool {
	return err != nil && !IsConditionFailed(err) && !IsNonRetryable(err)
}

// mapConditionError converts the SDK's conditional failure into ErrConditionFailed.
func mapConditionError(err error) error {
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrConditionFailed
	}
	return err
}

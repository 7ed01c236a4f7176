// Package stream provides DynamoDB Streams handlers for association cascades.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/spool/assoc"
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/store"
)

// Cascader runs association cascades for a parent.
type Cascader interface {
	CascadeUnlink(ctx context.Context, parent assoc.Parent) (assoc.Stats, error)
	CascadeRefresh(ctx context.Context, parent assoc.Parent, attrs map[string]any) (assoc.Stats, error)
}

// Handler processes DynamoDB stream events for association cascades.
type Handler struct {
	cascader Cascader
	registry *assoc.Registry
	logger   *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(c Cascader, registry *assoc.Registry, logger *slog.Logger) *Handler {
	if registry == nil {
		registry = assoc.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cascader: c,
		registry: registry,
		logger:   logger,
	}
}

// HandleCascade unlinks the children of removed parents and refreshes the
// denormalized copies of renamed ones.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascade(ctx context.Context, event events.DynamoDBEvent) error {
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	image := record.Change.NewImage
	if record.EventName == "REMOVE" {
		image = record.Change.OldImage
	}

	datatype := getStringAttr(image, store.AttrDatatype)
	if !h.registry.HasChildren(datatype) {
		return nil
	}

	parent, ok := parentFromKey(datatype, ConvertStreamKey(record.Change.Keys))
	if !ok {
		h.logger.Warn("skipping record with unexpected key",
			"eventID", record.EventID,
			"datatype", datatype,
		)
		return nil
	}

	switch record.EventName {
	case "REMOVE":
		h.logger.Info("processing cascade unlink",
			"parentType", parent.Type,
			"parentID", parent.ID,
		)
		if _, err := h.cascader.CascadeUnlink(ctx, parent); err != nil {
			return fmt.Errorf("cascade unlink: %w", err)
		}

	case "MODIFY":
		changed := h.changedAttrs(datatype, record.Change.OldImage, record.Change.NewImage)
		if len(changed) == 0 {
			return nil
		}
		h.logger.Info("processing cascade refresh",
			"parentType", parent.Type,
			"parentID", parent.ID,
			"attrs", len(changed),
		)
		if _, err := h.cascader.CascadeRefresh(ctx, parent, changed); err != nil {
			return fmt.Errorf("cascade refresh: %w", err)
		}
	}
	return nil
}

// changedAttrs returns the denormalized parent attributes whose value differs
// between the old and new image.
func (h *Handler) changedAttrs(datatype string, oldImage, newImage map[string]events.DynamoDBAttributeValue) map[string]any {
	changed := make(map[string]any)
	for _, a := range h.registry.ChildrenOf(datatype) {
		for parentAttr := range a.Denormalized {
			newValue, ok := attrValue(newImage, parentAttr)
			if !ok {
				continue
			}
			if oldValue, ok := attrValue(oldImage, parentAttr); ok && oldValue == newValue {
				continue
			}
			changed[parentAttr] = newValue
		}
	}
	return changed
}

// parentFromKey derives the association parent from a parent item's key,
// whose sort key is "<datatype>#<id>".
func parentFromKey(datatype string, key store.Key) (assoc.Parent, bool) {
	pk := store.StringAttr(key, store.AttrPK)
	id, ok := strings.CutPrefix(store.StringAttr(key, store.AttrSK), datatype+keys.Separator)
	if pk == "" || !ok || id == "" {
		return assoc.Parent{}, false
	}
	return assoc.Parent{Type: datatype, PK: pk, ID: id}, true
}

// attrValue extracts a scalar attribute as a comparable Go value.
func attrValue(image map[string]events.DynamoDBAttributeValue, key string) (any, bool) {
	v, ok := image[key]
	if !ok {
		return nil, false
	}
	switch v.DataType() {
	case events.DataTypeString:
		return v.String(), true
	case events.DataTypeNumber:
		return getNumberAttr(image, key), true
	case events.DataTypeBoolean:
		return v.Boolean(), true
	}
	return nil, false
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamKey converts a DynamoDB stream key to a store.Key.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.Key {
	result := make(store.Key)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}

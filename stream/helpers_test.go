package stream

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/spool/store"
)

// --- getStringAttr Tests ---

func TestGetStringAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"name":     events.NewStringAttribute("Spring Range"),
		"empty":    events.NewStringAttribute(""),
		"count":    events.NewNumberAttribute("3"),
		"datatype": events.NewStringAttribute("product-group"),
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"name", "Spring Range"},
		{"empty", ""},
		{"count", ""},
		{"missing", ""},
		{"datatype", "product-group"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := getStringAttr(image, tt.key); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGetStringAttr_NilImage(t *testing.T) {
	var image map[string]events.DynamoDBAttributeValue

	if got := getStringAttr(image, "name"); got != "" {
		t.Errorf("expected empty string for nil image, got %q", got)
	}
}

// --- getNumberAttr Tests ---

func TestGetNumberAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"grouped_products": events.NewNumberAttribute("42"),
		"zero":             events.NewNumberAttribute("0"),
		"negative":         events.NewNumberAttribute("-100"),
		"max":              events.NewNumberAttribute("9223372036854775807"),
		"text":             events.NewStringAttribute("not-a-number"),
	}

	tests := []struct {
		key      string
		expected int64
	}{
		{"grouped_products", 42},
		{"zero", 0},
		{"negative", -100},
		{"max", 9223372036854775807},
		{"text", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := getNumberAttr(image, tt.key); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

// --- attrValue Tests ---

func TestAttrValue(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"name":   events.NewStringAttribute("Core"),
		"size":   events.NewNumberAttribute("7"),
		"active": events.NewBooleanAttribute(true),
		"tags":   events.NewStringSetAttribute([]string{"a"}),
	}

	if v, ok := attrValue(image, "name"); !ok || v != "Core" {
		t.Errorf("expected Core, got %v (%v)", v, ok)
	}
	if v, ok := attrValue(image, "size"); !ok || v != int64(7) {
		t.Errorf("expected 7, got %v (%v)", v, ok)
	}
	if v, ok := attrValue(image, "active"); !ok || v != true {
		t.Errorf("expected true, got %v (%v)", v, ok)
	}
	if _, ok := attrValue(image, "tags"); ok {
		t.Error("expected set attribute to be unsupported")
	}
	if _, ok := attrValue(image, "missing"); ok {
		t.Error("expected missing attribute to report false")
	}
}

// --- parentFromKey Tests ---

func TestParentFromKey(t *testing.T) {
	parent, ok := parentFromKey("product-group", store.TableKey("brand#acme", "product-group#g1"))
	if !ok {
		t.Fatal("expected parent")
	}
	if parent.Type != "product-group" || parent.PK != "brand#acme" || parent.ID != "g1" {
		t.Errorf("unexpected parent: %+v", parent)
	}
}

func TestParentFromKey_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  store.Key
	}{
		{"other datatype", store.TableKey("brand#acme", "brand-product#0001")},
		{"empty id", store.TableKey("brand#acme", "product-group#")},
		{"no pk", store.TableKey("", "product-group#g1")},
		{"empty key", store.Key{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parentFromKey("product-group", tt.key); ok {
				t.Error("expected key to be rejected")
			}
		})
	}
}

// --- processRecord Tests ---

func TestProcessRecord_SkipsUnregisteredDatatypes(t *testing.T) {
	// nil cascader: any cascade call would panic
	h := NewHandler(nil, nil, nil)

	for _, name := range []string{"INSERT", "MODIFY", "REMOVE"} {
		t.Run(name, func(t *testing.T) {
			record := &events.DynamoDBEventRecord{
				EventName: name,
				Change: events.DynamoDBStreamRecord{
					OldImage: map[string]events.DynamoDBAttributeValue{
						"datatype": events.NewStringAttribute("brand-product"),
					},
					NewImage: map[string]events.DynamoDBAttributeValue{
						"datatype": events.NewStringAttribute("brand-product"),
					},
				},
			}
			if err := h.processRecord(context.Background(), record); err != nil {
				t.Errorf("expected no error for %s event, got %v", name, err)
			}
		})
	}
}

// --- Benchmark Tests ---

func BenchmarkGetStringAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"datatype": events.NewStringAttribute("product-group"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		getStringAttr(image, "datatype")
	}
}

func BenchmarkAttrValue(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"grouped_products": events.NewNumberAttribute("1704067200"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		attrValue(image, "grouped_products")
	}
}

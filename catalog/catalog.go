// Package catalog implements the brand, product and product-group operations
// on top of the pagination, batch and association layers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"

	"github.com/jacentio/spool/assoc"
	"github.com/jacentio/spool/batch"
	"github.com/jacentio/spool/cursor"
	"github.com/jacentio/spool/internal/keys"
	"github.com/jacentio/spool/store"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("spool: invalid input")

	// ErrNotFound is returned when a brand, product or group does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrExists is returned when creating something that already exists.
	ErrExists = errors.New("spool: already exists")
)

// Store is the subset of store primitives the catalog uses.
type Store interface {
	assoc.Store
	Get(ctx context.Context, key store.Key) (store.Item, error)
	BatchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error)
}

// RetryQueue accepts unprocessed import items for a later attempt.
type RetryQueue interface {
	Enqueue(ctx context.Context, brand string, items []Product, attempt int) error
}

// Config holds configuration for the Service.
type Config struct {
	// DatatypeIndex is the GSI keyed by datatype and sk.
	// Default: "datatype-index"
	DatatypeIndex string

	// PageLimit is the page size of listing endpoints.
	// Default: 50
	PageLimit int32

	// Batch configures the batch reconciler.
	Batch batch.Config

	// Assoc configures the association maintainer.
	Assoc assoc.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DatatypeIndex: "datatype-index",
		PageLimit:     50,
		Batch:         batch.DefaultConfig(),
		Assoc:         assoc.DefaultConfig(),
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.DatatypeIndex == "" {
		c.DatatypeIndex = "datatype-index"
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 50
	}
}

// Service implements the catalog operations.
type Service struct {
	store      Store
	codec      *cursor.Codec
	queue      RetryQueue
	maintainer *assoc.Maintainer
	reconciler *batch.Reconciler[Product]
	validate   *validator.Validate
	config     Config
	logger     *slog.Logger
}

// NewService creates a new Service. queue may be nil, in which case
// unprocessed imports are reported as failed.
func NewService(s Store, codec *cursor.Codec, queue RetryQueue, config Config, logger *slog.Logger) *Service {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      s,
		codec:      codec,
		queue:      queue,
		maintainer: assoc.NewMaintainer(s, NewRegistry(), config.Assoc, logger),
		reconciler: batch.NewReconciler[Product](config.Batch, logger),
		validate:   newValidator(),
		config:     config,
		logger:     logger,
	}
}

// Maintainer returns the association maintainer used by the service.
func (s *Service) Maintainer() *assoc.Maintainer {
	return s.maintainer
}

// NewRegistry returns the catalog's associations: products linked to product
// groups, with the brand's grouped_products count derived from the links.
func NewRegistry() *assoc.Registry {
	r := assoc.NewRegistry()
	r.Register(assoc.Association{
		ParentType:   keys.DatatypeGroup,
		ChildType:    keys.DatatypeProduct,
		RecordType:   keys.DatatypeGroupMember,
		LinkAttr:     "product_group",
		Denormalized: map[string]string{"name": "group_name"},
		RecordAttrs: func(p assoc.Parent, childSK string) map[string]any {
			gtin, _ := keys.GTIN(childSK)
			return map[string]any{"group_id": p.ID, "gtin": gtin}
		},
		Derived: func(p assoc.Parent, delta int64) (store.Update, bool) {
			return store.Update{
				Key: store.TableKey(p.PK, keys.BrandSK),
				Add: map[string]int64{"grouped_products": delta},
			}, true
		},
	})
	return r
}

// GroupParent returns the association parent of a product group.
func GroupParent(brand, group string) assoc.Parent {
	return assoc.Parent{Type: keys.DatatypeGroup, PK: keys.BrandPK(brand), ID: group}
}

// newValidator returns a validator with the catalog's custom tags registered.
func newValidator() *validator.Validate {
	v := validator.New()
	// notreserved rejects identifiers that collide with sort-key namespaces.
	v.RegisterValidation("notreserved", func(fl validator.FieldLevel) bool {
		return !keys.Reserved(fl.Field().String())
	})
	return v
}

// checkID validates a brand or group identifier taken from a path.
func (s *Service) checkID(name, id string) error {
	if err := s.validate.Var(id, "required,max=64,excludesall=#,notreserved"); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, formatValidationError(name, err))
	}
	return nil
}

// checkStruct validates v against its validate tags.
func (s *Service) checkStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, formatValidationError("", err))
	}
	return nil
}

// checkGTIN validates a GTIN taken from a path.
func (s *Service) checkGTIN(gtin string) error {
	if err := s.validate.Var(gtin, "required,numeric,min=8,max=14"); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, formatValidationError("gtin", err))
	}
	return nil
}

// formatValidationError renders validator errors as readable messages.
func formatValidationError(name string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := name
		if field == "" {
			field = strings.ToLower(e.Field())
		}
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "numeric":
			msgs = append(msgs, fmt.Sprintf("%s must be numeric", field))
		case "notreserved":
			msgs = append(msgs, fmt.Sprintf("%s %q is reserved", field, e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

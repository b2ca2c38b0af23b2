// Package ingestion validates incoming touchpoints, appends them to the
// touchpoint log and feeds them in from streaming sources.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"attribution-engine/internal/cache"
	"attribution-engine/internal/domain"
	"attribution-engine/internal/observability"
	"attribution-engine/internal/storage"
)

// Ingestor appends validated touchpoints to the log.
type Ingestor struct {
	tenants     storage.TenantStore
	touchpoints storage.TouchpointStore
	cache       cache.Cache
	validate    *validator.Validate
	logger      *slog.Logger
}

// Options contains configuration for creating an Ingestor.
type Options struct {
	Tenants     storage.TenantStore
	Touchpoints storage.TouchpointStore
	Cache       cache.Cache // nil disables invalidation
	Logger      *slog.Logger
}

// NewIngestor creates a new ingestor.
func NewIngestor(opts Options) *Ingestor {
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		tenants:     opts.Tenants,
		touchpoints: opts.Touchpoints,
		cache:       c,
		validate:    newValidator(),
		logger:      logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Ingest validates and appends one touchpoint, returning its id.
// Re-submitting a stored touchpoint id, or a conversion for an already
// recorded order, returns the existing id without appending.
func (g *Ingestor) Ingest(ctx context.Context, tenantID string, in domain.TouchpointInput) (string, error) {
	if err := g.requireTenant(ctx, tenantID); err != nil {
		return "", err
	}

	tp, err := g.prepare(tenantID, &in)
	if err != nil {
		observability.RecordIngestError("validation")
		return "", err
	}

	return g.store(ctx, tp)
}

// IngestBatch validates every item before appending any of them, then
// appends them in order. A validation failure reports the item index.
func (g *Ingestor) IngestBatch(ctx context.Context, tenantID string, items []domain.TouchpointInput) ([]string, error) {
	if err := g.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	tps := make([]*domain.Touchpoint, len(items))
	for i := range items {
		tp, err := g.prepare(tenantID, &items[i])
		if err != nil {
			observability.RecordIngestError("validation")
			return nil, prefixFields(err, fmt.Sprintf("items[%d].", i))
		}
		tps[i] = tp
	}

	ids := make([]string, 0, len(tps))
	for _, tp := range tps {
		id, err := g.store(ctx, tp)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (g *Ingestor) requireTenant(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.NewValidationError("tenantId", "required")
	}
	ok, err := g.tenants.Exists(ctx, tenantID)
	if err != nil {
		return &domain.StorageError{Op: "check tenant", Err: err}
	}
	if !ok {
		return &domain.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	return nil
}

func (g *Ingestor) prepare(tenantID string, in *domain.TouchpointInput) (*domain.Touchpoint, error) {
	if err := g.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]domain.FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, domain.FieldError{Field: fe.Field(), Message: describeTag(fe)})
			}
			return nil, &domain.ValidationError{Fields: fields}
		}
		return nil, fmt.Errorf("validate touchpoint: %w", err)
	}
	return Normalize(tenantID, in)
}

func (g *Ingestor) store(ctx context.Context, tp *domain.Touchpoint) (string, error) {
	err := g.touchpoints.Insert(ctx, tp)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrDuplicateKey):
		observability.RecordDuplicate("touchpoint_id")
		g.logger.Debug("duplicate touchpoint", "tenant", tp.TenantID, "touchpoint_id", tp.TouchpointID)
		return tp.TouchpointID, nil
	case errors.Is(err, storage.ErrDuplicateOrder):
		existing, gerr := g.touchpoints.GetConversionByOrderID(ctx, tp.TenantID, tp.OrderID)
		if gerr != nil {
			observability.RecordIngestError("storage")
			return "", &domain.StorageError{Op: "get conversion by order", Err: gerr}
		}
		observability.RecordDuplicate("order_id")
		g.logger.Debug("duplicate order", "tenant", tp.TenantID, "order_id", tp.OrderID)
		return existing.TouchpointID, nil
	default:
		observability.RecordIngestError("storage")
		return "", &domain.StorageError{Op: "insert touchpoint", Err: err}
	}

	n, err := g.cache.InvalidateCovering(ctx, tp.TenantID, tp.OccurredAt)
	if err != nil {
		// The append already succeeded; a stale entry expires on its own TTL.
		g.logger.Warn("cache invalidation failed", "tenant", tp.TenantID, "error", err)
	} else if n > 0 {
		observability.RecordCacheInvalidation(n)
	}

	observability.RecordTouchpoint(tp.Channel, tp.IsConversion(), float64(time.Now().Unix()))
	return tp.TouchpointID, nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func prefixFields(err error, prefix string) error {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	fields := make([]domain.FieldError, len(ve.Fields))
	for i, f := range ve.Fields {
		fields[i] = domain.FieldError{Field: prefix + f.Field, Message: f.Message}
	}
	return &domain.ValidationError{Fields: fields}
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
)

// AlertPublisher receives alerts created by committed stock writes.
type AlertPublisher interface {
	Publish(ctx context.Context, raised []alerts.Alert)
}

// Service implements catalog business rules.
type Service struct {
	repo      Repository
	cache     LowStockCache
	publisher AlertPublisher
	audit     shared.AuditRecorder
	logger    *slog.Logger
	validate  *validator.Validate
	clock     func() time.Time
}

// NewService constructs a Service. cache, publisher and audit may be nil.
func NewService(repo Repository, cache LowStockCache, publisher AlertPublisher, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		audit:     audit,
		logger:    logger,
		validate:  validator.New(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns active products matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	return s.repo.List(ctx, filters)
}

// ListAll returns every product, deactivated ones included.
func (s *Service) ListAll(ctx context.Context) ([]Product, error) {
	return s.repo.ListAll(ctx)
}

// LowStock returns active products at or under their threshold, lowest stock first.
func (s *Service) LowStock(ctx context.Context) (LowStockResult, error) {
	if s.cache != nil {
		if products, ok := s.cache.Get(ctx); ok {
			return LowStockResult{Count: len(products), Products: products}, nil
		}
	}
	products, err := s.repo.LowStock(ctx)
	if err != nil {
		return LowStockResult{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, products)
	}
	return LowStockResult{Count: len(products), Products: products}, nil
}

// Get returns an active product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !p.IsActive {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Reference = strings.TrimSpace(req.Reference)
	if err := httpx.Validate(s.validate, req); err != nil {
		return Product{}, err
	}
	if err := checkPrices(req.PurchasePrice, req.SellingPrice); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Insert(ctx, Product{
		Name:                 req.Name,
		Reference:            req.Reference,
		Category:             req.Category,
		Brand:                req.Brand,
		Origin:               req.Origin,
		CompatibleReferences: req.CompatibleReferences,
		Description:          req.Description,
		QuantityInStock:      req.QuantityInStock,
		Threshold:            req.Threshold,
		PurchasePrice:        req.PurchasePrice,
		SellingPrice:         req.SellingPrice,
		IsActive:             true,
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx)
	s.record(ctx, "product.create", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// Update applies a patch. When stock or threshold change, alerts for the
// product are reconciled in the same transaction.
func (s *Service) Update(ctx context.Context, id int64, req UpdateProductRequest) (Product, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return Product{}, err
	}
	var (
		updated Product
		raised  []alerts.Alert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		raised = nil
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next := applyPatch(current, req)
		if err := checkPrices(next.PurchasePrice, next.SellingPrice); err != nil {
			return err
		}
		updated, err = tx.Update(ctx, next)
		if err != nil {
			return err
		}
		if req.QuantityInStock == nil && req.Threshold == nil {
			return nil
		}
		created, _, err := alerts.Evaluate(ctx, tx.Alerts(), alerts.StockLevel{
			ProductID: updated.ID,
			Name:      updated.Name,
			Quantity:  updated.QuantityInStock,
			Threshold: updated.Threshold,
		}, s.clock())
		if err != nil {
			return err
		}
		if created != nil {
			raised = append(raised, *created)
		}
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if stockRelevant(req) {
		s.invalidate(ctx)
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, raised)
	}
	s.record(ctx, "product.update", id, nil)
	return updated, nil
}

// Deactivate soft-deletes a product.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, "product.deactivate", id, nil)
	return nil
}

func applyPatch(p Product, req UpdateProductRequest) Product {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Reference != nil {
		p.Reference = strings.TrimSpace(*req.Reference)
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Brand != nil {
		p.Brand = *req.Brand
	}
	if req.Origin != nil {
		p.Origin = *req.Origin
	}
	if req.CompatibleReferences != nil {
		p.CompatibleReferences = *req.CompatibleReferences
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.QuantityInStock != nil {
		p.QuantityInStock = *req.QuantityInStock
	}
	if req.Threshold != nil {
		p.Threshold = *req.Threshold
	}
	if req.PurchasePrice != nil {
		p.PurchasePrice = *req.PurchasePrice
	}
	if req.SellingPrice != nil {
		p.SellingPrice = *req.SellingPrice
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return p
}

func stockRelevant(req UpdateProductRequest) bool {
	return req.QuantityInStock != nil || req.Threshold != nil || req.IsActive != nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit product", slog.String("action", action), slog.Any("error", err))
	}
}

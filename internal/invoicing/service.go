package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/catalog"
	"github.com/stockdesk/stockdesk/internal/observability"
	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
)

// AlertPublisher receives alerts raised by committed stock writes.
type AlertPublisher interface {
	Publish(ctx context.Context, raised []alerts.Alert)
}

// StockCache is invalidated whenever invoices move stock.
type StockCache interface {
	Invalidate(ctx context.Context)
}

// Renderer turns an HTML document into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Policy holds the configurable stock rules.
type Policy struct {
	// AllowNegativeStock permits backorders; when false an invoice that
	// would take a product below zero is rejected.
	AllowNegativeStock bool
	// DeleteRestoresStock adds item quantities back when an invoice that
	// already moved stock is deleted.
	DeleteRestoresStock bool
}

// Deps are the optional collaborators of the service; nil members are skipped.
type Deps struct {
	Publisher AlertPublisher
	Cache     StockCache
	Renderer  Renderer
	Audit     shared.AuditRecorder
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Service implements the invoice lifecycle.
type Service struct {
	repo     Repository
	policy   Policy
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	clock    func() time.Time
	renders  singleflight.Group
}

func NewService(repo Repository, policy Policy, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		policy:   policy,
		deps:     deps,
		logger:   logger,
		validate: validator.New(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists an invoice or quote with its items. Invoices take their
// quantities out of stock in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest) (inv Invoice, err error) {
	ctx, span := observability.StartSpan(ctx, "invoicing.Create", attribute.String("invoice.type", string(req.Type)))
	defer func() { observability.EndSpan(span, err) }()

	if len(req.Items) == 0 {
		return Invoice{}, ErrNoItems
	}
	if err := httpx.Validate(s.validate, req); err != nil {
		return Invoice{}, err
	}
	total := decimal.Zero
	for _, it := range req.Items {
		if it.UnitPrice.IsNegative() {
			return Invoice{}, ErrNegativePrice
		}
		if !httpx.FitsMoney(it.UnitPrice) {
			return Invoice{}, ErrPricePrecision
		}
		total = total.Add(LineTotal(it.Quantity, it.UnitPrice))
	}
	date := s.clock()
	if req.Date != nil {
		date = req.Date.UTC()
	}

	var raised []alerts.Alert
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		raised = nil
		active, err := tx.CustomerActive(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if !active {
			return ErrUnknownCustomer
		}
		created, err := tx.Insert(ctx, Invoice{
			Type:       req.Type,
			Date:       date,
			DueDate:    req.DueDate,
			Status:     InitialStatus(req.Type),
			Total:      total,
			Notes:      req.Notes,
			CustomerID: req.CustomerID,
		})
		if err != nil {
			return err
		}
		created.Reference = FormatReference(created.Type, created.Date.Year(), created.ID)

		items := make([]Item, 0, len(req.Items))
		for _, in := range req.Items {
			item, err := tx.InsertItem(ctx, Item{
				InvoiceID:  created.ID,
				ProductID:  in.ProductID,
				Quantity:   in.Quantity,
				UnitPrice:  in.UnitPrice,
				TotalPrice: LineTotal(in.Quantity, in.UnitPrice),
			})
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		if raised, err = s.applyStock(ctx, tx, &created, items); err != nil {
			return err
		}
		inv, err = tx.Update(ctx, created)
		return err
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}

	s.afterStockWrite(ctx, inv.AppliedToStock, raised)
	s.deps.Metrics.InvoiceCreated(string(inv.Type))
	s.record(ctx, "invoice.create", inv.ID, map[string]any{"reference": inv.Reference, "total": inv.Total.String()})
	return inv, nil
}

// Update patches header fields. A quote turned into an invoice moves stock
// exactly like a newly created invoice.
func (s *Service) Update(ctx context.Context, id int64, req UpdateInvoiceRequest) (inv Invoice, err error) {
	ctx, span := observability.StartSpan(ctx, "invoicing.Update", attribute.Int64("invoice.id", id))
	defer func() { observability.EndSpan(span, err) }()

	if err := httpx.Validate(s.validate, req); err != nil {
		return Invoice{}, err
	}
	var (
		raised        []alerts.Alert
		stockMoved    bool
		statusChanged bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		raised, stockMoved, statusChanged = nil, false, false
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next := current
		if req.Type != nil && *req.Type != current.Type {
			if *req.Type == TypeQuote && current.AppliedToStock {
				return ErrStockApplied
			}
			next.Type = *req.Type
			if req.Status == nil {
				next.Status = InitialStatus(next.Type)
			}
		}
		if req.Status != nil {
			next.Status = *req.Status
		}
		if req.Date != nil {
			next.Date = req.Date.UTC()
		}
		if req.DueDate != nil {
			next.DueDate = req.DueDate
		}
		if req.Notes != nil {
			next.Notes = *req.Notes
		}
		if next.Type == TypeInvoice && !next.AppliedToStock {
			items, err := tx.Items(ctx, id)
			if err != nil {
				return err
			}
			if raised, err = s.applyStock(ctx, tx, &next, items); err != nil {
				return err
			}
			stockMoved = true
		}
		statusChanged = next.Status != current.Status
		inv, err = tx.Update(ctx, next)
		return err
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("update invoice: %w", err)
	}

	s.afterStockWrite(ctx, stockMoved, raised)
	if statusChanged {
		s.deps.Metrics.InvoiceStatusChanged(string(inv.Status))
	}
	s.record(ctx, "invoice.update", id, nil)
	return inv, nil
}

// Delete removes an invoice with its items and payments. Stock is only
// given back when the policy asks for it.
func (s *Service) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := observability.StartSpan(ctx, "invoicing.Delete", attribute.Int64("invoice.id", id))
	defer func() { observability.EndSpan(span, err) }()

	var restored bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		restored = false
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s.policy.DeleteRestoresStock && current.AppliedToStock {
			items, err := tx.Items(ctx, id)
			if err != nil {
				return err
			}
			if err := s.restoreStock(ctx, tx, items); err != nil {
				return err
			}
			restored = true
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	s.afterStockWrite(ctx, restored, nil)
	s.record(ctx, "invoice.delete", id, map[string]any{"stock_restored": restored})
	return nil
}

// Get returns an invoice with its customer and items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	items, err := s.repo.ItemsFor(ctx, []int64{id})
	if err != nil {
		return Invoice{}, err
	}
	inv.Items = items[id]
	return inv, nil
}

// List returns invoice headers with their customer, newest first.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	return s.repo.List(ctx, filters)
}

// ListByCustomer returns the documents of an active customer with their
// items, most recent date first.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error) {
	active, err := s.repo.CustomerActive(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrCustomerNotFound
	}
	invoices, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil || len(invoices) == 0 {
		return invoices, err
	}
	ids := make([]int64, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
	}
	items, err := s.repo.ItemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Items = items[invoices[i].ID]
	}
	return invoices, nil
}

// applyStock takes the item quantities out of stock once per invoice.
// Products are locked in ascending id order. Items pointing at a product
// that no longer exists are skipped.
func (s *Service) applyStock(ctx context.Context, tx TxRepository, inv *Invoice, items []Item) ([]alerts.Alert, error) {
	if inv.Type != TypeInvoice || inv.AppliedToStock {
		return nil, nil
	}
	demand := make(map[int64]int, len(items))
	for _, it := range items {
		demand[it.ProductID] += it.Quantity
	}
	now := s.clock()
	var raised []alerts.Alert
	for _, productID := range sortedKeys(demand) {
		p, err := tx.Stock().GetForUpdate(ctx, productID)
		if errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("invoice item references missing product",
				slog.Int64("invoice_id", inv.ID), slog.Int64("product_id", productID))
			continue
		}
		if err != nil {
			return nil, err
		}
		newQty := p.QuantityInStock - demand[productID]
		if newQty < 0 && !s.policy.AllowNegativeStock {
			return nil, fmt.Errorf("%w: %s has %d, %d requested", ErrInsufficientStock, p.Name, p.QuantityInStock, demand[productID])
		}
		if err := tx.Stock().SetQuantity(ctx, productID, newQty); err != nil {
			return nil, err
		}
		if newQty >= p.Threshold {
			continue
		}
		alert, created, err := alerts.EnsureAlert(ctx, tx.Alerts(), productID, alerts.TypeFor(newQty), alerts.Message(p.Name, newQty), now)
		if err != nil {
			return nil, err
		}
		if created {
			raised = append(raised, alert)
		}
	}
	inv.AppliedToStock = true
	return raised, nil
}

// restoreStock gives item quantities back and resolves alerts of products
// that are back at or above their threshold.
func (s *Service) restoreStock(ctx context.Context, tx TxRepository, items []Item) error {
	supply := make(map[int64]int, len(items))
	for _, it := range items {
		supply[it.ProductID] += it.Quantity
	}
	now := s.clock()
	for _, productID := range sortedKeys(supply) {
		p, err := tx.Stock().GetForUpdate(ctx, productID)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		newQty := p.QuantityInStock + supply[productID]
		if err := tx.Stock().SetQuantity(ctx, productID, newQty); err != nil {
			return err
		}
		if newQty >= p.Threshold {
			if _, err := tx.Alerts().ResolveForProduct(ctx, productID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) afterStockWrite(ctx context.Context, stockMoved bool, raised []alerts.Alert) {
	if stockMoved && s.deps.Cache != nil {
		s.deps.Cache.Invalidate(ctx)
	}
	if len(raised) > 0 && s.deps.Publisher != nil {
		s.deps.Publisher.Publish(ctx, raised)
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Any("error", err))
	}
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

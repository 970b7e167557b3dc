package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stockdesk/stockdesk/internal/platform/httpx"
	"github.com/stockdesk/stockdesk/internal/shared"
)

// Service exposes customer business logic.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs a customer service. audit may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New()}
}

// List returns active customers, newest first.
func (s *Service) List(ctx context.Context) ([]Customer, error) {
	return s.repo.List(ctx)
}

// Get returns an active customer.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if !c.IsActive {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := httpx.Validate(s.validate, req); err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Create(ctx, Customer{Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address})
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.record(ctx, "customer.create", c.ID)
	return c, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (Customer, error) {
	if err := httpx.Validate(s.validate, req); err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		c.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	s.record(ctx, "customer.update", id)
	return updated, nil
}

// Deactivate soft-deletes a customer; invoices keep referencing it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "customer.deactivate", id)
	return nil
}

// Stats summarises the billing history of an active customer.
func (s *Service) Stats(ctx context.Context, id int64) (StatsResponse, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return StatsResponse{}, err
	}
	var (
		invoices []InvoiceFact
		payments []PaymentFact
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.repo.InvoiceFacts(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.PaymentFacts(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return StatsResponse{}, fmt.Errorf("customer stats: %w", err)
	}
	return StatsResponse{Customer: c, Stats: summarize(invoices, payments)}, nil
}

func summarize(invoices []InvoiceFact, payments []PaymentFact) Stats {
	st := Stats{
		TotalInvoices: len(invoices),
		TotalAmount:   decimal.Zero,
		TotalPaid:     decimal.Zero,
		ByType:        map[string]int{},
		ByStatus:      map[string]int{},
		ByMethod:      map[string]decimal.Decimal{},
	}
	for _, inv := range invoices {
		st.TotalAmount = st.TotalAmount.Add(inv.Total)
		st.ByType[inv.Type]++
		st.ByStatus[inv.Status]++
		if st.LastInvoice == nil || inv.Date.After(st.LastInvoice.Date) {
			st.LastInvoice = &LastInvoice{ID: inv.ID, Type: inv.Type, Total: inv.Total, Date: inv.Date}
		}
	}
	for _, p := range payments {
		st.TotalPaid = st.TotalPaid.Add(p.Amount)
		st.ByMethod[p.Method] = st.ByMethod[p.Method].Add(p.Amount)
		if st.LastPayment == nil || p.Date.After(st.LastPayment.Date) {
			st.LastPayment = &LastPayment{ID: p.ID, Amount: p.Amount, Method: p.Method, Date: p.Date}
		}
	}
	st.TotalAmount = st.TotalAmount.Round(2)
	st.TotalPaid = st.TotalPaid.Round(2)
	st.TotalPending = st.TotalAmount.Sub(st.TotalPaid)
	return st
}

func (s *Service) record(ctx context.Context, action string, id int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "customer",
		EntityID: strconv.FormatInt(id, 10),
	}); err != nil {
		s.logger.Warn("audit customer", slog.String("action", action), slog.Any("error", err))
	}
}

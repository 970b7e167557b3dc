package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockdesk/stockdesk/internal/observability"
)

// Notifier fans newly raised alerts out to operators.
type Notifier interface {
	AlertRaised(ctx context.Context, alert Alert) error
}

// Service exposes alert listings, reconciliation and post-commit publishing.
type Service struct {
	repo     Repository
	notifier Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService constructs a Service. notifier and metrics may be nil.
func NewService(repo Repository, notifier Notifier, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns every alert, newest first.
func (s *Service) List(ctx context.Context) ([]Alert, error) {
	return s.repo.List(ctx)
}

// Unresolved returns open alerts with their count.
func (s *Service) Unresolved(ctx context.Context) (UnresolvedResult, error) {
	list, err := s.repo.ListUnresolved(ctx)
	if err != nil {
		return UnresolvedResult{}, err
	}
	return UnresolvedResult{Count: len(list), Alerts: list}, nil
}

// Reconcile sweeps all active products and brings alerts in line with
// current stock.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var (
		result ReconcileResult
		raised []Alert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = ReconcileResult{}
		raised = raised[:0]
		levels, err := tx.LockStockLevels(ctx)
		if err != nil {
			return fmt.Errorf("load stock levels: %w", err)
		}
		now := s.clock()
		for _, level := range levels {
			created, resolved, err := Evaluate(ctx, tx, level, now)
			if err != nil {
				return fmt.Errorf("product %d: %w", level.ProductID, err)
			}
			result.Checked++
			result.Resolved += int(resolved)
			if created != nil {
				result.Created++
				raised = append(raised, *created)
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile alerts: %w", err)
	}
	s.Publish(ctx, raised)
	return result, nil
}

// Publish reports alerts created by a committed transaction. Notification
// failures are logged and never surface to the caller.
func (s *Service) Publish(ctx context.Context, raised []Alert) {
	if s == nil {
		return
	}
	for _, alert := range raised {
		s.metrics.AlertRaised(string(alert.Type))
		s.logger.Info("stock alert raised",
			slog.Int64("alert_id", alert.ID),
			slog.Int64("product_id", alert.ProductID),
			slog.String("type", string(alert.Type)),
		)
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.AlertRaised(ctx, alert); err != nil {
			s.logger.Warn("notify stock alert", slog.Int64("alert_id", alert.ID), slog.Any("error", err))
		}
	}
}

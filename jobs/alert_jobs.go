package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockdesk/stockdesk/internal/alerts"
	jobmetrics "github.com/stockdesk/stockdesk/internal/jobs"
)

// AlertNotifyJob consumes TaskAlertNotify. Delivery is a structured log line;
// mail or SMS transports hook in here.
type AlertNotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertNotifyJob initialises the notify handler.
func NewAlertNotifyJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertNotifyJob {
	return &AlertNotifyJob{Logger: logger, Metrics: metrics}
}

// Handle processes a notify task.
func (j *AlertNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AlertNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskAlertNotify, err, asynq.SkipRetry)
	}
	if payload.AlertID <= 0 {
		return fmt.Errorf("%s: missing alert id: %w", TaskAlertNotify, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAlertNotify)
	j.logger().Warn("stock alert",
		slog.Int64("alert_id", payload.AlertID),
		slog.Int64("product_id", payload.ProductID),
		slog.String("type", payload.Type),
		slog.String("message", payload.Message),
	)
	return tracker.End(nil)
}

func (j *AlertNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Reconciler is satisfied by *alerts.Service.
type Reconciler interface {
	Reconcile(ctx context.Context) (alerts.ReconcileResult, error)
}

// AlertReconcileJob sweeps products and aligns alerts with current stock.
type AlertReconcileJob struct {
	Alerts  Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertReconcileJob initialises the reconcile handler.
func NewAlertReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertReconcileJob {
	return &AlertReconcileJob{Alerts: reconciler, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation sweep.
func (j *AlertReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Alerts == nil {
		return errors.New("alert reconcile: handler not configured")
	}
	var payload AlertReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", TaskAlertReconcile, err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskAlertReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}

	result, err := j.Alerts.Reconcile(ctx)
	if err != nil {
		logger.Error("alert reconcile failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddReconciled(result.Created, result.Resolved)
	logger.Info("alert reconcile complete",
		slog.Int("checked", result.Checked),
		slog.Int("created", result.Created),
		slog.Int("resolved", result.Resolved),
	)
	return nil
}

func (j *AlertReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

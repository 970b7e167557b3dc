package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stockdesk/stockdesk/internal/alerts"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertNotify delivers a freshly raised stock alert to operators.
	TaskAlertNotify = "alerts:notify"
	// TaskAlertReconcile re-evaluates every active product against its threshold.
	TaskAlertReconcile = "alerts:reconcile"
)

// AlertNotifyPayload carries the alert snapshot taken when it was raised.
type AlertNotifyPayload struct {
	AlertID   int64  `json:"alert_id"`
	ProductID int64  `json:"product_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

// AlertReconcilePayload records what scheduled a reconciliation run.
type AlertReconcilePayload struct {
	Trigger string `json:"trigger"`
}

// NewAlertNotifyTask builds a notify task.
func NewAlertNotifyTask(alert alerts.Alert) (*asynq.Task, error) {
	data, err := json.Marshal(AlertNotifyPayload{
		AlertID:   alert.ID,
		ProductID: alert.ProductID,
		Type:      string(alert.Type),
		Message:   alert.Message,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertNotify, data, asynq.MaxRetry(5)), nil
}

// AlertTaskID derives a stable task id from the alert id and type so a
// retried publish never notifies twice.
func AlertTaskID(alert alerts.Alert) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("alert:%d:%s", alert.ID, alert.Type))).String()
}

// NewAlertReconcileTask builds a reconcile task tagged with its trigger
// ("cron", "cli", ...).
func NewAlertReconcileTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "manual"
	}
	data, err := json.Marshal(AlertReconcilePayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertReconcile, data, asynq.MaxRetry(3)), nil
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/stockdesk/internal/alerts"
	jobmetrics "github.com/stockdesk/stockdesk/internal/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	id := ""
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			id = opt.Value().(string)
		}
	}
	if id != "" {
		if f.seen[id] {
			return nil, asynq.ErrTaskIDConflict
		}
		f.seen[id] = true
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: id, Queue: QueueDefault, Type: task.Type()}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientAlertRaisedDeduplicates(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)
	alert := alerts.Alert{ID: 7, ProductID: 3, Type: alerts.TypeLowStock, Message: "Stock bas pour Widget"}

	require.NoError(t, client.AlertRaised(context.Background(), alert))
	require.NoError(t, client.AlertRaised(context.Background(), alert))
	require.Len(t, enq.tasks, 1)

	var payload AlertNotifyPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, AlertNotifyPayload{AlertID: 7, ProductID: 3, Type: "low_stock", Message: "Stock bas pour Widget"}, payload)

	// escalation of the same alert row is a distinct notification
	alert.Type = alerts.TypeOutOfStock
	require.NoError(t, client.AlertRaised(context.Background(), alert))
	require.Len(t, enq.tasks, 2)
}

func TestClientAlertRaisedPropagatesErrors(t *testing.T) {
	client := NewClientWith(&fakeEnqueuer{err: errors.New("redis down")})
	err := client.AlertRaised(context.Background(), alerts.Alert{ID: 1, Type: alerts.TypeLowStock})
	require.EqualError(t, err, "redis down")
	require.NoError(t, client.Close())
}

func TestEnqueueReconcileTagsTrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	info, err := NewClientWith(enq).EnqueueReconcile(context.Background(), "cli")
	require.NoError(t, err)
	require.Equal(t, TaskAlertReconcile, info.Type)

	var payload AlertReconcilePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "cli", payload.Trigger)
}

func TestAlertNotifyJobRejectsBadPayload(t *testing.T) {
	job := NewAlertNotifyJob(discard(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAlertNotify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskAlertNotify, []byte(`{"product_id":3}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewAlertNotifyTask(alerts.Alert{ID: 9, ProductID: 3, Type: alerts.TypeOutOfStock, Message: "Rupture"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

type stubReconciler struct {
	result alerts.ReconcileResult
	err    error
	calls  int
}

func (s *stubReconciler) Reconcile(ctx context.Context) (alerts.ReconcileResult, error) {
	s.calls++
	return s.result, s.err
}

func TestAlertReconcileJob(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	rec := &stubReconciler{result: alerts.ReconcileResult{Checked: 4, Created: 1, Resolved: 2}}
	job := NewAlertReconcileJob(rec, discard(), metrics)

	task, err := NewAlertReconcileTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, rec.calls)

	rec.err = errors.New("deadlock")
	require.EqualError(t, job.Handle(context.Background(), task), "deadlock")

	require.Error(t, (&AlertReconcileJob{}).Handle(context.Background(), task))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := map[string]struct {
		inspector QueueInspector
		status    int
		pending   int
	}{
		"no inspector": {inspector: nil, status: http.StatusOK},
		"queue info":   {inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		"empty queue":  {inspector: stubInspector{err: asynq.ErrQueueNotFound}, status: http.StatusOK},
		"redis down":   {inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, discard()).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := RedisClientOpt("redis://:pw@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opt.Addr)
	require.Equal(t, "pw", opt.Password)
	require.Equal(t, 2, opt.DB)

	opt, err = RedisClientOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", opt.Addr)
}

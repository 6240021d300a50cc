package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
	"github.com/odyssey-erp/odyssey-access/internal/onboarding"
)

const (
	// TaskInvitationsExpire stores the expired status of lapsed invitations.
	TaskInvitationsExpire = "invitations:expire"
	// TaskProvisioningReconcile retries failed onboarding provisioning steps.
	TaskProvisioningReconcile = "provisioning:reconcile"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewInvitationsExpireTask builds the expiry sweep task.
func NewInvitationsExpireTask() *asynq.Task {
	return asynq.NewTask(TaskInvitationsExpire, nil, asynq.Queue(QueueDefault))
}

// NewProvisioningReconcileTask builds the reconcile task.
func NewProvisioningReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskProvisioningReconcile, nil, asynq.Queue(QueueDefault))
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// Expirer persists expiry of lapsed invitations.
type Expirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ExpireInvitationsJob runs the expiry sweep.
type ExpireInvitationsJob struct {
	Expirer Expirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskInvitationsExpire tasks.
func (j *ExpireInvitationsJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("invitations expire: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskInvitationsExpire)
	n, err := j.Expirer.ExpireStale(ctx)
	if err == nil && n > 0 {
		loggerOrDefault(j.Logger, TaskInvitationsExpire).Info("expired stale invitations", slog.Int64("count", n))
	}
	return tracker.End(err)
}

// GapReconciler retries provisioning gaps.
type GapReconciler interface {
	Run(ctx context.Context) (onboarding.Summary, error)
}

// ReconcileProvisioningJob runs one reconciliation pass.
type ReconcileProvisioningJob struct {
	Reconciler GapReconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskProvisioningReconcile tasks.
func (j *ReconcileProvisioningJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("provisioning reconcile: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskProvisioningReconcile)
	summary, err := j.Reconciler.Run(ctx)
	if summary.Attempted > 0 {
		loggerOrDefault(j.Logger, TaskProvisioningReconcile).Info("reconciled provisioning gaps",
			slog.Int("attempted", summary.Attempted),
			slog.Int("resolved", summary.Resolved),
			slog.Int("failed", summary.Failed))
	}
	return tracker.End(err)
}

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupIdempotencyJob prunes idempotency keys.
type CleanupIdempotencyJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupIdempotencyJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	n, err := j.Store.Cleanup(ctx, retention)
	if err == nil && n > 0 {
		loggerOrDefault(j.Logger, TaskIdempotencyCleanup).Info("pruned idempotency keys", slog.Int64("count", n))
	}
	return tracker.End(err)
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
	"github.com/odyssey-erp/odyssey-access/internal/onboarding"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return f.err
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestInvitationEmailJobSendsLink(t *testing.T) {
	sender := &fakeSender{}
	job := &InvitationEmailJob{Sender: sender, Metrics: testMetrics()}
	email := invitations.Email{
		InvitationID: "inv-1",
		To:           "nia@example.com",
		FirstName:    "Nia",
		Link:         "https://access.example.com/onboarding?token=abc",
		ExpiresAt:    time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}
	task, err := NewInvitationEmailTask(email)
	require.NoError(t, err)
	require.Equal(t, TaskInvitationEmail, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "nia@example.com", sender.sent[0].to)
	require.Contains(t, sender.sent[0].body, "Hello Nia,")
	require.Contains(t, sender.sent[0].body, email.Link)
}

func TestInvitationEmailJobRetriesDeliveryFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay unavailable")}
	job := &InvitationEmailJob{Sender: sender, Metrics: testMetrics()}
	task, err := NewInvitationEmailTask(invitations.Email{To: "a@example.com", Link: "https://x/onboarding?token=t"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestInvitationEmailJobSkipsBadPayload(t *testing.T) {
	job := &InvitationEmailJob{Sender: &fakeSender{}, Metrics: testMetrics()}

	err := job.Handle(context.Background(), asynq.NewTask(TaskInvitationEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	raw, err := json.Marshal(invitations.Email{To: "a@example.com"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(TaskInvitationEmail, raw))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRenderInvitationEmailWithoutName(t *testing.T) {
	subject, body := RenderInvitationEmail(invitations.Email{Link: "https://x/onboarding?token=t"})
	require.NotEmpty(t, subject)
	require.Contains(t, body, "Hello,")
}

type expirerFunc func(context.Context) (int64, error)

func (fn expirerFunc) ExpireStale(ctx context.Context) (int64, error) { return fn(ctx) }

type reconcilerFunc func(context.Context) (onboarding.Summary, error)

func (fn reconcilerFunc) Run(ctx context.Context) (onboarding.Summary, error) { return fn(ctx) }

type cleanerFunc func(context.Context, time.Duration) (int64, error)

func (fn cleanerFunc) Cleanup(ctx context.Context, d time.Duration) (int64, error) { return fn(ctx, d) }

func TestMaintenanceJobs(t *testing.T) {
	calls := 0
	expire := &ExpireInvitationsJob{Expirer: expirerFunc(func(context.Context) (int64, error) {
		calls++
		return 3, nil
	}), Metrics: testMetrics()}
	require.NoError(t, expire.Handle(context.Background(), NewInvitationsExpireTask()))
	require.Equal(t, 1, calls)

	failure := errors.New("db down")
	reconcile := &ReconcileProvisioningJob{Reconciler: reconcilerFunc(func(context.Context) (onboarding.Summary, error) {
		return onboarding.Summary{Attempted: 2, Resolved: 1}, failure
	}), Metrics: testMetrics()}
	require.ErrorIs(t, reconcile.Handle(context.Background(), NewProvisioningReconcileTask()), failure)

	var retention time.Duration
	cleanup := &CleanupIdempotencyJob{Store: cleanerFunc(func(_ context.Context, d time.Duration) (int64, error) {
		retention = d
		return 0, nil
	}), Metrics: testMetrics()}
	require.NoError(t, cleanup.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 24*time.Hour, retention)

	var unconfigured *ExpireInvitationsJob
	require.Error(t, unconfigured.Handle(context.Background(), NewInvitationsExpireTask()))
}

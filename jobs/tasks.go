package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-access/internal/invitations"
	jobmetrics "github.com/odyssey-erp/odyssey-access/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvitationEmail delivers the onboarding link to an invitee.
	TaskInvitationEmail = "invitation:email"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewInvitationEmailTask constructs an Asynq task.
func NewInvitationEmailTask(email invitations.Email) (*asynq.Task, error) {
	data, err := json.Marshal(email)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvitationEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

// NewSMTPSender builds a sender for host:port. Credentials are optional.
func NewSMTPSender(host string, port int, from, username, password string) *SMTPSender {
	s := &SMTPSender{Addr: host + ":" + strconv.Itoa(port), From: from}
	if username != "" {
		s.Auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send writes a single plain-text message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(msg))
}

// InvitationEmailJob renders and sends invitation emails.
type InvitationEmailJob struct {
	Sender  Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskInvitationEmail tasks.
func (j *InvitationEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("invitation email: sender not configured")
	}
	var email invitations.Email
	if err := json.Unmarshal(t.Payload(), &email); err != nil {
		return fmt.Errorf("invitation email: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if email.To == "" || email.Link == "" {
		return fmt.Errorf("invitation email: incomplete payload: %w", asynq.SkipRetry)
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskInvitationEmail)
	subject, body := RenderInvitationEmail(email)
	err := j.Sender.Send(ctx, email.To, subject, body)
	if err != nil {
		loggerOrDefault(j.Logger, TaskInvitationEmail).Warn("send invitation email", slog.String("invitation_id", email.InvitationID), slog.Any("error", err))
	}
	return tracker.End(err)
}

// RenderInvitationEmail builds the plain-text invitation message.
func RenderInvitationEmail(email invitations.Email) (subject, body string) {
	greeting := "Hello,"
	if name := strings.TrimSpace(email.FirstName + " " + email.LastName); name != "" {
		greeting = "Hello " + name + ","
	}
	subject = "You have been invited to Odyssey"
	body = strings.Join([]string{
		greeting,
		"",
		"You have been invited to join your team on Odyssey. Set your password to get started:",
		"",
		email.Link,
		"",
		"This link expires on " + email.ExpiresAt.UTC().Format(time.RFC1123) + ".",
	}, "\r\n")
	return subject, body
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/internal/gateway"
	"github.com/open-alumni/portal-api/pkg/config"
	"github.com/open-alumni/portal-api/pkg/jobs"
)

// NotificationService pushes member-facing messages onto a background queue
// so request handling never waits on the mail relay.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService wires the queue to the notifier.
func NewNotificationService(notifier gateway.Notifier, cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		mail, ok := job.Payload.(gateway.Mail)
		if !ok {
			return fmt.Errorf("unexpected payload type for job %s", job.ID)
		}
		return notifier.Send(ctx, mail)
	}

	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})

	return &NotificationService{queue: queue, logger: logger}
}

// Start begins background delivery.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues one message. Failures to enqueue are logged, not returned:
// notifications are best-effort and never block the triggering operation.
func (s *NotificationService) Notify(to, subject, body string) {
	if to == "" {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "mail",
		Payload: gateway.Mail{To: to, Subject: subject, Body: body},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
	}
}

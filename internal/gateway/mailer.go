package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/open-alumni/portal-api/pkg/config"
)

// Mail is one outbound message.
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier delivers outbound notifications to members.
type Notifier interface {
	Send(ctx context.Context, mail Mail) error
}

// HTTPMailer posts messages to the mail relay endpoint.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPMailer constructs the mailer from configuration.
func NewHTTPMailer(cfg config.MailerConfig, logger *zap.Logger) *HTTPMailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMailer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		sender:   cfg.Sender,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Send delivers one message. With no relay configured the message is logged
// and dropped, which keeps development environments mail-free.
func (m *HTTPMailer) Send(ctx context.Context, mail Mail) error {
	if m.endpoint == "" {
		m.logger.Info("mail relay not configured, dropping message",
			zap.String("to", mail.To),
			zap.String("subject", mail.Subject))
		return nil
	}

	payload, err := json.Marshal(struct {
		Mail
		From string `json:"from"`
	}{Mail: mail, From: m.sender})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("call mail relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail relay status %d", resp.StatusCode)
	}
	return nil
}

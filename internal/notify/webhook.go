package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tempwatch/internal/logger"
)

// Webhook errors
var (
	ErrEmptyURL      = errors.New("webhook URL is required")
	ErrBadStatus     = errors.New("webhook returned non-success status")
	ErrInvalidFormat = errors.New("unknown webhook payload format")
	ErrEmptyMessage  = errors.New("message cannot be empty")
)

const defaultTimeout = 15 * time.Second

// WebhookConfig configures the outgoing webhook transport.
type WebhookConfig struct {
	URL string

	// "card" posts a Teams adaptive card, "text" posts {PayloadKey: message}
	Format     string
	PayloadKey string

	// Disable TLS verification when false (self-signed endpoints)
	VerifyTLS bool

	// Per-request timeout; defaults to 15s
	Timeout time.Duration
}

// Webhook posts notification messages as JSON to a configured endpoint.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}

	if cfg.Format == "" {
		cfg.Format = "card"
	}
	if cfg.Format != "card" && cfg.Format != "text" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, cfg.Format)
	}

	if cfg.PayloadKey == "" {
		cfg.PayloadKey = "text"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport
	if !cfg.VerifyTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Webhook{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Send posts the message. Any non-2xx response is an error; delivery is not
// retried here, the poll cadence is the retry cadence.
func (w *Webhook) Send(ctx context.Context, message string) error {
	if message == "" {
		return ErrEmptyMessage
	}

	body, err := w.buildPayload(message)
	if err != nil {
		return fmt.Errorf("failed to build webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	log := logger.WithComponent("notify")
	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("webhook delivered")

	return nil
}

func (w *Webhook) buildPayload(message string) ([]byte, error) {
	if w.cfg.Format == "text" {
		return json.Marshal(map[string]string{w.cfg.PayloadKey: message})
	}

	// Adaptive card payload for Teams Logic App / Workflow triggers
	card := map[string]any{
		"attachments": []map[string]any{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": map[string]any{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.4",
				"body": []map[string]any{
					{"type": "TextBlock", "size": "Large", "weight": "Bolder", "text": "Temperature Monitor"},
					{"type": "TextBlock", "text": message},
				},
			},
		}},
	}
	return json.Marshal(card)
}

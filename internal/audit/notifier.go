package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/pkg/types"
)

// Notifier is told about privileged actions after they commit. Failures never
// affect the committed mutation.
type Notifier interface {
	Notify(ctx context.Context, entry *types.AuditLogEntry) error
}

// LogNotifier writes privileged actions to the structured log.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, entry *types.AuditLogEntry) error {
	attrs := []any{
		"audit_id", entry.ID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"details", entry.Details,
	}
	if entry.TargetID != nil {
		attrs = append(attrs, "target_id", *entry.TargetID)
	}
	logger.Warn(ctx, "privileged action committed", attrs...)
	return nil
}

// DefaultWebhookTimeout bounds one webhook delivery.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookNotifier POSTs each privileged entry as JSON to an operator endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. A nil client gets one with
// DefaultWebhookTimeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookPayload struct {
	Event string               `json:"event"`
	Entry *types.AuditLogEntry `json:"entry"`
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, entry *types.AuditLogEntry) error {
	body, err := json.Marshal(webhookPayload{Event: "privileged_action", Entry: entry})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiNotifier fans an entry out to several notifiers and returns the first error.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, entry *types.AuditLogEntry) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"traffic-guard/internal/model"
)

// DiscordNotifier posts alerts to a Discord-compatible webhook. The payload
// is a single human-readable content string; no structured schema beyond
// that is assumed by the channel.
//
// Delivery is best-effort with a single attempt. There is no retry, no
// idempotency key and no dedup across refreshes; a re-processed event sends
// a second notification.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
	logger     *logrus.Logger
}

type webhookMessage struct {
	Content string `json:"content"`
}

// NewDiscordNotifier creates a webhook notifier with a bounded timeout.
func NewDiscordNotifier(webhookURL string, enabled bool, timeout time.Duration, logger *logrus.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		enabled:    enabled,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SendAlert implements Notifier. Transport failures are returned classified,
// never raised past the dispatcher.
func (dn *DiscordNotifier) SendAlert(alert model.Alert) error {
	if !dn.enabled {
		dn.logger.Debug("Discord notifier is disabled, skipping alert")
		return nil
	}

	message := dn.formatAlertMessage(alert)
	return dn.sendMessage(message)
}

func (dn *DiscordNotifier) formatAlertMessage(alert model.Alert) string {
	timestamp := alert.Timestamp.Format("2006-01-02 15:04:05")

	message := fmt.Sprintf("ALERT FIRING: %s Anomaly Detected\n\n"+
		"time: %s\n"+
		"severity: %s\n"+
		"message: %s",
		alert.Category,
		timestamp,
		alert.Severity,
		alert.Message)

	if alert.Record != nil {
		message += fmt.Sprintf("\nscore: %.4f", alert.Record.Score)
		for name, value := range alert.Record.Fields {
			message += fmt.Sprintf("\n%s: %v", name, value)
		}
	}

	return message
}

func (dn *DiscordNotifier) sendMessage(text string) error {
	jsonData, err := json.Marshal(webhookMessage{Content: text})
	if err != nil {
		return &model.TransportError{Op: "webhook", Err: fmt.Errorf("failed to marshal message: %v", err)}
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, dn.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return &model.TransportError{Op: "webhook", Err: fmt.Errorf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := dn.client.Do(req)
	if err != nil {
		return &model.TransportError{Op: "webhook", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &model.TransportError{Op: "webhook", Err: fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))}
	}

	dn.logger.Infof("Alert sent to webhook successfully")
	return nil
}

// IsEnabled reports whether the notifier will attempt delivery.
func (dn *DiscordNotifier) IsEnabled() bool {
	return dn.enabled
}

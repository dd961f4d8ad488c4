// Package slack posts outbreak alerts to a Slack webhook so local health
// officers hear about cluster signals as they are detected.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arogyalabs/sahay/internal/triage"
)

const httpTimeout = 10 * time.Second

// Notifier sends outbreak-flagged decisions to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts the decision's outbreak signal to the configured webhook.
func (n *Notifier) Send(ctx context.Context, d *triage.Decision) error {
	if n.webhookURL == "" || d.Outbreak == nil {
		return nil
	}

	body, err := json.Marshal(buildMessage(d))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(d *triage.Decision) map[string]any {
	ob := d.Outbreak

	location := "unknown"
	if d.LocationLat != nil && d.LocationLng != nil {
		location = fmt.Sprintf("%.4f, %.4f", *d.LocationLat, *d.LocationLng)
	}

	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": ":rotating_light: Outbreak signal detected",
				},
			},
			{"type": "divider"},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Cases:* %d", ob.Cases)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Radius:* %.0f km", ob.RadiusKm)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Window:* %dh", ob.WindowHours)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Location:* %s", location)},
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Symptoms:* %s\n%s",
						strings.Join(ob.SymptomCluster, ", "), ob.RecommendedAction),
				},
			},
		},
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Notifier receives shortage events. The stock ledger fires it at most once
// per item per day.
type Notifier interface {
	ShortageAlert(ctx context.Context, item string, remaining int) error
}

// LogNotifier writes shortage alerts to the process log. Used when no
// webhook is configured.
type LogNotifier struct{}

func (LogNotifier) ShortageAlert(_ context.Context, item string, remaining int) error {
	log.Printf("[notify] shortage alert: item=%s remaining=%d", item, remaining)
	return nil
}

type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *WebhookNotifier) ShortageAlert(ctx context.Context, item string, remaining int) error {
	payload, err := json.Marshal(map[string]any{
		"item":      item,
		"remaining": remaining,
		"at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("shortage webhook returned status %d", resp.StatusCode)
	}
	return nil
}

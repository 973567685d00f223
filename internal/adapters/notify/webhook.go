package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const (
	executePath    = "/api/oracle/execute"
	webhookTimeout = 5 * time.Second
)

// Webhook implementa ports.NoticeSink enviando cada ejecución como JSON
// a un consumidor HTTP externo.
type Webhook struct {
	http *http.Client
	url  string
}

// NewWebhook crea el sink para la API en baseURL.
func NewWebhook(baseURL string) *Webhook {
	return &Webhook{
		http: &http.Client{Timeout: webhookTimeout},
		url:  strings.TrimRight(baseURL, "/") + executePath,
	}
}

// Notify hace un único POST, sin reintentos. Cualquier respuesta no 2xx es error.
func (w *Webhook) Notify(ctx context.Context, notice domain.ExecutionNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("webhook.Notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook.Notify: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook.Notify: %w: %w", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook.Notify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/metrics"
)

// apiDispatcher posts messages to an HTTP mail relay. The relay is
// expected to answer 2xx with a JSON body carrying the message id.
type apiDispatcher struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func newAPIDispatcher(cfg config.Mail) (*apiDispatcher, error) {
	if cfg.APIEndpoint == "" {
		return nil, errors.New("api transport requires MAIL_API_ENDPOINT")
	}
	return &apiDispatcher{
		endpoint: cfg.APIEndpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type apiMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

func (d *apiDispatcher) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	body, err := json.Marshal(apiMessage{
		From:    d.from,
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.MailDispatches.WithLabelValues("api", "error").Inc()
		return "", fmt.Errorf("mail relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.MailDispatches.WithLabelValues("api", "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, snippet)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.MailDispatches.WithLabelValues("api", "error").Inc()
		return "", fmt.Errorf("failed to decode mail relay response: %w", err)
	}
	metrics.MailDispatches.WithLabelValues("api", "ok").Inc()
	return out.ID, nil
}

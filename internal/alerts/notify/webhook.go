package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type webhookRequest struct {
	Tokens       []string            `json:"tokens"`
	Notification webhookNotification `json:"notification"`
	Data         map[string]string   `json:"data"`
	Android      webhookAndroid      `json:"android"`
}

type webhookNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type webhookAndroid struct {
	Priority  string `json:"priority"`
	Sound     string `json:"sound"`
	Color     string `json:"color"`
	ChannelID string `json:"channel_id"`
}

type webhookResponse struct {
	Responses []webhookResult `json:"responses"`
}

type webhookResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WebhookProvider posts batches to a push relay.
type WebhookProvider struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook provider.
type WebhookOption func(*WebhookProvider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(p *WebhookProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// NewWebhookProvider constructs a webhook provider.
func NewWebhookProvider(url string, opts ...WebhookOption) (*WebhookProvider, error) {
	if url == "" {
		return nil, errors.New("webhook provider: empty url")
	}
	p := &WebhookProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Send posts one request carrying every endpoint. The relay answers with one result per token,
// in request order.
func (p *WebhookProvider) Send(ctx context.Context, msg Message, endpoints []string) (BatchResult, error) {
	if len(endpoints) == 0 {
		return BatchResult{}, ErrNoEndpoints
	}
	payload := webhookRequest{
		Tokens:       endpoints,
		Notification: webhookNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		Android: webhookAndroid{
			Priority:  msg.Style.Priority,
			Sound:     msg.Style.Sound,
			Color:     msg.Style.Color,
			ChannelID: ChannelID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return BatchResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return BatchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return BatchResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return BatchResult{}, fmt.Errorf("webhook provider: non-2xx response %d", resp.StatusCode)
	}
	var decoded webhookResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return BatchResult{}, fmt.Errorf("webhook provider: decode response: %w", err)
	}
	if len(decoded.Responses) != len(endpoints) {
		return BatchResult{}, fmt.Errorf("webhook provider: %d results for %d tokens", len(decoded.Responses), len(endpoints))
	}

	var result BatchResult
	for i, r := range decoded.Responses {
		if r.Success {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if permanentWebhookError(r.Error) {
			result.Rejected = append(result.Rejected, endpoints[i])
		}
	}
	return result, nil
}

func permanentWebhookError(code string) bool {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "UNREGISTERED", "INVALID_ARGUMENT", "NOT_FOUND":
		return true
	default:
		return false
	}
}

package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PushGateway calls a third-party push multicast provider over HTTP, one
// request per device token (the adapter already loops devices; the gateway
// client stays single-device to keep the injected function signature plain).
type PushGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewPushGateway(baseURL, apiKey string, timeout time.Duration, qps float64, logger *zap.Logger) *PushGateway {
	return &PushGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(qps), int(qps)+1),
		logger:  logger,
	}
}

type pushSendRequest struct {
	Token    string         `json:"token"`
	Platform string         `json:"platform"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Priority string         `json:"priority"`
	TTL      int            `json:"ttl_seconds"`
	Silent   bool           `json:"silent"`
}

type pushSendResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements the function shape providers.NewPushAdapter expects.
func (g *PushGateway) Send(ctx context.Context, token, platform, title, body string, data map[string]any, priority string, ttl time.Duration, silent bool) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("push gateway: rate limiter: %w", err)
	}

	payload, err := json.Marshal(pushSendRequest{
		Token: token, Platform: platform, Title: title, Body: body,
		Data: data, Priority: priority, TTL: int(ttl.Seconds()), Silent: silent,
	})
	if err != nil {
		return "", fmt.Errorf("push gateway: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("push gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, respBody)
	}

	var out pushSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("push gateway: decode response: %w", err)
	}
	return out.MessageID, nil
}

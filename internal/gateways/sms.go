// Package gateways holds the outbound provider clients that back the
// SMS/email/push adapters' injected send functions. Each client follows the
// same shape the socket adapter already uses directly: a thin HTTP (or SMTP)
// call wrapped just enough to satisfy the adapter's function signature.
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

// SMSGateway calls a third-party SMS provider over HTTP. Outbound calls are
// locally throttled with a token bucket independent of the per-user Rate
// Budget Store, which bounds per-user volume but not total provider QPS.
type SMSGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewSMSGateway(baseURL, apiKey string, timeout time.Duration, qps float64, logger *zap.Logger) *SMSGateway {
	return &SMSGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(qps), int(qps)+1),
		logger:  logger,
	}
}

type smsSendRequest struct {
	To           string `json:"to"`
	Body         string `json:"body"`
	HighPriority bool   `json:"high_priority"`
}

type smsSendResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements the function shape providers.NewSMSAdapter expects.
func (g *SMSGateway) Send(ctx context.Context, phone, body string, highPriority bool) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("sms gateway: rate limiter: %w", err)
	}

	payload, err := json.Marshal(smsSendRequest{To: phone, Body: body, HighPriority: highPriority})
	if err != nil {
		return "", fmt.Errorf("sms gateway: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("sms gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, respBody)
	}

	var out smsSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sms gateway: decode response: %w", err)
	}
	return out.MessageID, nil
}

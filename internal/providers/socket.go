package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"notifyengine/internal/model"
)

// SocketAdapter pushes to the real-time socket gateway over HTTP: a POST to
// deliver, and a GET to check whether the user is currently connected.
type SocketAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
	enabled bool
}

func NewSocketAdapter(baseURL, apiKey string, timeout time.Duration, enabled bool, logger *zap.Logger) *SocketAdapter {
	return &SocketAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		enabled: enabled,
	}
}

func (a *SocketAdapter) Channel() model.Channel { return model.ChannelSocket }

type socketSendRequest struct {
	UserID int64          `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

type socketConnectionResponse struct {
	Connected bool `json:"connected"`
}

func (a *SocketAdapter) Send(ctx context.Context, in SendInput) Outcome {
	if !a.enabled {
		return Outcome{Status: model.StatusFailed, Error: "channel not enabled"}
	}

	body, err := json.Marshal(socketSendRequest{UserID: in.UserID, Title: in.Title, Body: in.Body, Data: in.Data})
	if err != nil {
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/notifications/send", bytes.NewReader(body))
	if err != nil {
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("socket gateway send failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return Outcome{Status: model.StatusFailed, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return Outcome{Status: model.StatusFailed, Error: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, respBody)}
	}

	connected := a.isConnected(ctx, in.UserID)
	if connected {
		return Outcome{Status: model.StatusDelivered}
	}
	return Outcome{Status: model.StatusSent}
}

func (a *SocketAdapter) isConnected(ctx context.Context, userID int64) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/connections/%d", a.baseURL, userID), nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var out socketConnectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return out.Connected
}

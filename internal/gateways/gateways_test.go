package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSMSGatewaySendReturnsProviderMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "/v1/messages", r.URL.Path)
		var req smsSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "+15551234567", req.To)
		json.NewEncoder(w).Encode(smsSendResponse{MessageID: "sms-1"})
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, "test-key", 2*time.Second, 100, zap.NewNop())
	id, err := g.Send(context.Background(), "+15551234567", "hello", false)
	require.NoError(t, err)
	require.Equal(t, "sms-1", id)
}

func TestSMSGatewaySendPropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid number"))
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, "test-key", 2*time.Second, 100, zap.NewNop())
	_, err := g.Send(context.Background(), "+15551234567", "hello", false)
	require.Error(t, err)
}

func TestPushGatewaySendReturnsProviderMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req pushSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "ios", req.Platform)
		json.NewEncoder(w).Encode(pushSendResponse{MessageID: "push-1"})
	}))
	defer srv.Close()

	g := NewPushGateway(srv.URL, "test-key", 2*time.Second, 100, zap.NewNop())
	id, err := g.Send(context.Background(), "tok", "ios", "title", "body", nil, "normal", time.Hour, false)
	require.NoError(t, err)
	require.Equal(t, "push-1", id)
}

func TestPushGatewaySendPropagatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewPushGateway(srv.URL, "test-key", 2*time.Second, 100, zap.NewNop())
	_, err := g.Send(context.Background(), "tok", "ios", "t", "b", nil, "normal", time.Hour, false)
	require.Error(t, err)
}

func TestEmailGatewayBuildsMultipartMessage(t *testing.T) {
	msg := string(buildMIMEMessage("from@example.com", "to@example.com", "Subject line", "<p>hi</p>", "hi"))

	for _, want := range []string{
		"From: from@example.com",
		"To: to@example.com",
		"Subject: Subject line",
		"Content-Type: multipart/alternative",
		"<p>hi</p>",
		"hi",
	} {
		require.Contains(t, msg, want)
	}
}

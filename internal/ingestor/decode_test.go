package ingestor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelopeRejectsMissingUserID(t *testing.T) {
	raw := json.RawMessage(`{"eventType":"login_failed","payload":{"ipAddress":"1.2.3.4"}}`)
	_, err := decodeEnvelope(raw)
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsMissingEventType(t *testing.T) {
	raw := json.RawMessage(`{"payload":{"userId":42}}`)
	_, err := decodeEnvelope(raw)
	require.Error(t, err)
}

func TestDecodeEnvelopeAcceptsValidShape(t *testing.T) {
	raw := json.RawMessage(`{"eventType":"login_failed","correlationId":"abc","payload":{"userId":42,"ipAddress":"1.2.3.4"}}`)
	env, err := decodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, "login_failed", env.EventType)
	require.Equal(t, "abc", env.CorrelationID)
}

func TestBuildRequestUnrecognizedKindIsNotAnError(t *testing.T) {
	env := envelope{EventType: "something_unknown", Payload: map[string]any{"userId": float64(1)}}
	_, recognized, err := buildRequest("security", env)
	require.NoError(t, err)
	require.False(t, recognized)
}

func TestBuildRequestTransferCompletedRequiresAmount(t *testing.T) {
	env := envelope{EventType: "transfer_completed", Payload: map[string]any{"userId": float64(1)}}
	_, recognized, err := buildRequest("transaction", env)
	require.True(t, recognized, "expected transfer_completed to be recognized on the transaction topic")
	require.Error(t, err, "expected decode error for missing amount field")
}

func TestBuildRequestFraudDetectedSetsCriticalPriority(t *testing.T) {
	env := envelope{EventType: "fraud_detected", Payload: map[string]any{
		"userId": float64(7), "reason": "impossible travel", "caseId": "case-1",
	}}
	req, recognized, err := buildRequest("fraud", env)
	require.True(t, recognized)
	require.NoError(t, err)
	require.Equal(t, "critical", string(req.Priority))
	require.Equal(t, "case-1", req.SourceID)
}

func TestBuildRequestWrongTopicIsUnrecognized(t *testing.T) {
	env := envelope{EventType: "fraud_detected", Payload: map[string]any{"userId": float64(1)}}
	_, recognized, err := buildRequest("transaction", env)
	require.NoError(t, err)
	require.False(t, recognized, "expected fraud_detected on the wrong topic to be unrecognized")
}

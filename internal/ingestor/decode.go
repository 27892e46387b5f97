package ingestor

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"notifyengine/internal/model"
)

// envelopeValidate runs the struct-tag checks below. A single package-level
// validator is reused across every decode call, matching the package's own
// recommended usage (its internal struct/field caches are safe for concurrent
// reuse, unlike constructing one per call).
var envelopeValidate = validator.New()

// envelope is the structured object every ingress message carries, per the
// bus's wire contract: eventType, timestamp, service, version, an optional
// correlation id, and a payload object that must contain a user id.
type envelope struct {
	EventType     string         `json:"eventType" validate:"required"`
	Timestamp     string         `json:"timestamp"`
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	CorrelationID string         `json:"correlationId"`
	Payload       map[string]any `json:"payload" validate:"required"`
}

// decodeEnvelope strictly unmarshals raw into an envelope and validates the
// fields Route cannot function without. A shape that fails either check is
// treated as an invalid payload, never passed through as untyped data.
func decodeEnvelope(raw json.RawMessage) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := envelopeValidate.Struct(env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := payloadUserID(env.Payload); !ok {
		return envelope{}, fmt.Errorf("decode envelope: payload missing userId")
	}
	return env, nil
}

// payloadUserID extracts and normalizes the payload's userId field, which
// may arrive as a JSON number or string depending on upstream producer.
func payloadUserID(payload map[string]any) (int64, bool) {
	raw, ok := payload["userId"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// kindDecoder builds a NotificationRequest's title/body from one event
// kind's payload shape. Decoders are intentionally strict: a payload
// missing a field the decoder needs is a decode error, not a best-effort
// partial notification.
type kindDecoder func(env envelope) (model.NotificationRequest, error)

// decoders is the static, topic-scoped mapping table from (topic, kind) to
// a decoder. A (topic, kind) pair absent from this table is an unrecognized
// kind: dropped silently per the Event Ingestor's contract.
var decoders = map[string]map[string]kindDecoder{
	"transaction": {
		"transfer_completed": decodeTransferCompleted,
		"transfer_failed":     decodeTransferFailed,
		"large_withdrawal":    decodeLargeWithdrawal,
	},
	"security": {
		"login_failed":     decodeLoginFailed,
		"login_new_device": decodeLoginNewDevice,
		"password_changed": decodePasswordChanged,
		"account_locked":   decodeAccountLocked,
		"account_unlocked": decodeAccountUnlocked,
	},
	"fraud": {
		"fraud_detected": decodeFraudDetected,
	},
	"user": {
		"kyc_verification_needed": decodeKYCVerificationNeeded,
		"statement_ready":         decodeStatementReady,
	},
}

// buildRequest maps an envelope from topic into a NotificationRequest. The
// second return value is false when (topic, envelope.EventType) has no
// registered decoder.
func buildRequest(topic string, env envelope) (model.NotificationRequest, bool, error) {
	topicDecoders, ok := decoders[topic]
	if !ok {
		return model.NotificationRequest{}, false, nil
	}
	decode, ok := topicDecoders[env.EventType]
	if !ok {
		return model.NotificationRequest{}, false, nil
	}
	req, err := decode(env)
	if err != nil {
		return model.NotificationRequest{}, true, err
	}
	req.Kind = env.EventType
	req.CorrelationID = env.CorrelationID
	return req, true, nil
}

func stringField(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("payload missing %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q is not a string", key)
	}
	return s, nil
}

func baseRequest(env envelope) (model.NotificationRequest, int64) {
	userID, _ := payloadUserID(env.Payload)
	return model.NotificationRequest{UserID: userID, Data: env.Payload}, userID
}

func decodeTransferCompleted(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	amount, err := stringField(env.Payload, "amount")
	if err != nil {
		return req, err
	}
	txID, _ := stringField(env.Payload, "transactionId")
	req.SourceID = txID
	req.Title = "Transfer completed"
	req.Body = fmt.Sprintf("Your transfer of %s completed successfully.", amount)
	return req, nil
}

func decodeTransferFailed(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	amount, err := stringField(env.Payload, "amount")
	if err != nil {
		return req, err
	}
	reason, _ := stringField(env.Payload, "reason")
	txID, _ := stringField(env.Payload, "transactionId")
	req.SourceID = txID
	req.Title = "Transfer failed"
	if reason != "" {
		req.Body = fmt.Sprintf("Your transfer of %s could not be completed: %s", amount, reason)
	} else {
		req.Body = fmt.Sprintf("Your transfer of %s could not be completed.", amount)
	}
	return req, nil
}

func decodeLargeWithdrawal(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	amount, err := stringField(env.Payload, "amount")
	if err != nil {
		return req, err
	}
	txID, _ := stringField(env.Payload, "transactionId")
	req.SourceID = txID
	req.Title = "Large withdrawal"
	req.Body = fmt.Sprintf("A withdrawal of %s was made from your account.", amount)
	return req, nil
}

func decodeLoginFailed(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	ip, _ := stringField(env.Payload, "ipAddress")
	req.Title = "Failed login attempt"
	if ip != "" {
		req.Body = fmt.Sprintf("A login attempt failed from %s.", ip)
	} else {
		req.Body = "A login attempt failed on your account."
	}
	return req, nil
}

func decodeLoginNewDevice(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	device, err := stringField(env.Payload, "deviceDescription")
	if err != nil {
		return req, err
	}
	req.Title = "New device login"
	req.Body = fmt.Sprintf("Your account was accessed from a new device: %s.", device)
	return req, nil
}

func decodePasswordChanged(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	req.Title = "Password changed"
	req.Body = "Your account password was just changed."
	return req, nil
}

func decodeFraudDetected(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	reason, err := stringField(env.Payload, "reason")
	if err != nil {
		return req, err
	}
	caseID, _ := stringField(env.Payload, "caseId")
	req.SourceID = caseID
	req.Priority = model.PriorityCritical
	req.Title = "Suspicious activity detected"
	req.Body = fmt.Sprintf("We detected suspicious activity on your account: %s.", reason)
	return req, nil
}

func decodeAccountLocked(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	reason, _ := stringField(env.Payload, "reason")
	req.Title = "Account locked"
	if reason != "" {
		req.Body = fmt.Sprintf("Your account has been locked: %s.", reason)
	} else {
		req.Body = "Your account has been locked."
	}
	return req, nil
}

func decodeAccountUnlocked(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	req.Title = "Account unlocked"
	req.Body = "Your account has been unlocked."
	return req, nil
}

func decodeKYCVerificationNeeded(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	req.Title = "Identity verification needed"
	req.Body = "We need you to verify your identity to keep using all account features."
	return req, nil
}

func decodeStatementReady(env envelope) (model.NotificationRequest, error) {
	req, _ := baseRequest(env)
	period, err := stringField(env.Payload, "period")
	if err != nil {
		return req, err
	}
	req.Title = "Statement ready"
	req.Body = fmt.Sprintf("Your statement for %s is ready to view.", period)
	return req, nil
}

// Package ingestor is the Event Ingestor: it consumes the four ingress bus
// topics, decodes each message through the strict per-topic decoder table
// in decode.go, maps recognized kinds to a NotificationRequest, and hands
// them to the Router. Unroutable or malformed messages go to the DLQ
// instead of being dropped.
package ingestor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"notifyengine/internal/dlqstore"
	"notifyengine/internal/model"
	"notifyengine/internal/router"
	"notifyengine/pkg/mq"
)

// BusConsumer is the subset of *mq.Consumer the Ingestor depends on, so
// tests can substitute a fake without a live broker connection.
type BusConsumer interface {
	SetHandler(h mq.MessageHandler)
	StartConsuming() error
	Close()
}

// Ingestor owns one consumer per ingress topic.
type Ingestor struct {
	consumers map[string]BusConsumer
	router    *router.Router
	dlq       *dlqstore.Store
	logger    *zap.Logger
}

func New(consumers map[string]BusConsumer, rt *router.Router, dlq *dlqstore.Store, logger *zap.Logger) *Ingestor {
	return &Ingestor{consumers: consumers, router: rt, dlq: dlq, logger: logger}
}

// Start wires each topic's handler and begins consuming; it returns once
// every consumer goroutine has been launched, not once they exit.
func (ing *Ingestor) Start(ctx context.Context) {
	for topic, consumer := range ing.consumers {
		topic, consumer := topic, consumer
		consumer.SetHandler(ing.handlerFor(topic))
		go func() {
			if err := consumer.StartConsuming(); err != nil {
				ing.logger.Error("ingestor consumer stopped", zap.String("topic", topic), zap.Error(err))
			}
		}()
	}
}

func (ing *Ingestor) Close() {
	for _, consumer := range ing.consumers {
		consumer.Close()
	}
}

func (ing *Ingestor) handlerFor(topic string) mq.MessageHandler {
	return func(ctx context.Context, data json.RawMessage) error {
		return ing.handleMessage(ctx, topic, data)
	}
}

// handleMessage decodes and routes one message. It returns a non-nil error
// only when the DLQ write itself failed — that is the one case the caller
// (the bus consumer) must nack-and-redeliver rather than advance past, so
// a malformed-message storm can never silently drain data into the void.
func (ing *Ingestor) handleMessage(ctx context.Context, topic string, data json.RawMessage) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		ing.logger.Warn("malformed ingress payload", zap.String("topic", topic), zap.Error(err))
		return ing.writeMalformedDLQ(ctx, topic, "", data, err)
	}

	req, recognized, err := buildRequest(topic, env)
	if err != nil {
		ing.logger.Warn("malformed ingress payload for recognized kind",
			zap.String("topic", topic), zap.String("kind", env.EventType), zap.Error(err))
		return ing.writeMalformedDLQ(ctx, topic, env.CorrelationID, data, err)
	}
	if !recognized {
		ing.logger.Debug("dropping unrecognized kind", zap.String("topic", topic), zap.String("kind", env.EventType))
		return nil
	}

	if _, err := ing.router.Route(ctx, req); err != nil {
		ing.logger.Error("router failed, writing DLQ record",
			zap.String("topic", topic), zap.String("kind", req.Kind), zap.Error(err))
		return ing.writeRouteFailureDLQ(ctx, req, err)
	}

	return nil
}

func (ing *Ingestor) writeMalformedDLQ(ctx context.Context, topic, correlationID string, data json.RawMessage, decodeErr error) error {
	var payload map[string]any
	_ = json.Unmarshal(data, &payload) // best effort; a DLQ record with nil payload is still useful

	id := correlationID
	if id == "" {
		id = fmt.Sprintf("%s:malformed", topic)
	}

	_, err := ing.dlq.Insert(ctx, &model.DLQRecord{
		Kind:          "unknown",
		SourceID:      id,
		Payload:       payload,
		FailureReason: "malformed: " + decodeErr.Error(),
		AttemptCount:  1,
		ReviewState:   model.DLQPendingReview,
	})
	if err != nil {
		return fmt.Errorf("ingestor: write malformed DLQ record: %w", err)
	}
	return nil
}

func (ing *Ingestor) writeRouteFailureDLQ(ctx context.Context, req model.NotificationRequest, routeErr error) error {
	_, err := ing.dlq.Insert(ctx, &model.DLQRecord{
		UserID:        req.UserID,
		Kind:          req.Kind,
		SourceID:      req.SourceID,
		Payload:       req.Data,
		FailureReason: "router error: " + routeErr.Error(),
		AttemptCount:  1,
		ReviewState:   model.DLQPendingReview,
	})
	if err != nil {
		return fmt.Errorf("ingestor: write route-failure DLQ record: %w", err)
	}
	return nil
}

// Package events publishes provisioning outcomes to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/model"
)

const (
	// StreamName is the JetStream stream holding provisioning events
	StreamName = "PROVISIONING"

	// SubjectPrefix is followed by the outcome, e.g. provisioning.created
	SubjectPrefix = "provisioning"
)

// Subject returns the subject an event with the given outcome is published on
func Subject(outcome model.ProvisionOutcome) string {
	return SubjectPrefix + "." + string(outcome)
}

// Publisher publishes provisioning events
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewPublisher creates a new publisher and makes sure the stream exists
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		js:     js,
		logger: logger.Named("events"),
	}

	if err := p.ensureStream(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Publisher) ensureStream() error {
	stream, err := p.js.StreamInfo(StreamName)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if stream != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".*"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish publishes a single provisioning event
func (p *Publisher) Publish(ctx context.Context, event *model.ProvisionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(Subject(event.Outcome), data, nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("event_id", event.ID),
		zap.String("outcome", string(event.Outcome)))
	return nil
}

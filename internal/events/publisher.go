// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher is closed")

// WatermillPublisher serializes events onto a Watermill publisher
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	mu        sync.RWMutex
	closed    bool
}

var _ Publisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher publishes to topic (DefaultTopic when empty)
func NewWatermillPublisher(pub message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: pub, topic: topic}
}

// Topic returns the topic events are published to
func (p *WatermillPublisher) Topic() string {
	return p.topic
}

// Publish serializes and sends event. The event id doubles as the message UUID.
func (p *WatermillPublisher) Publish(ctx context.Context, event *Event) (err error) {
	defer func() { metrics.RecordEventPublish(string(event.Type), err) }()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if event.CorrelationID == "" {
		event.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set("type", string(event.Type))
	if event.CorrelationID != "" {
		msg.Metadata.Set("correlation_id", event.CorrelationID)
	}
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Close shuts down the underlying publisher
func (p *WatermillPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// Emit publishes event and logs instead of returning a failure
func Emit(ctx context.Context, pub Publisher, event *Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("Failed to publish lifecycle event")
	}
}

// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/recdeploy/internal/logging"
)

func TestNew(t *testing.T) {
	a := New(TypePromoted)
	b := New(TypePromoted)
	if a.EventID == "" || a.EventID == b.EventID {
		t.Errorf("expected unique event ids, got %q and %q", a.EventID, b.EventID)
	}
	if a.OccurredAt.IsZero() || a.OccurredAt.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", a.OccurredAt)
	}
}

func TestChannelPublisher_DeliversEvent(t *testing.T) {
	pub, ch := NewChannelPublisher("")
	defer pub.Close() //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ch.Subscribe(ctx, DefaultTopic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ev := New(TypeTestStaged)
	ev.Version = 3
	ev.DeploymentID = "dep-3"
	ev.ModelID = "model-3"

	pubCtx := logging.ContextWithCorrelationID(context.Background(), "abcd1234")
	if err := pub.Publish(pubCtx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var msg *message.Message
	select {
	case msg = <-msgs:
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	msg.Ack()

	if msg.UUID != ev.EventID {
		t.Errorf("expected message UUID %s, got %s", ev.EventID, msg.UUID)
	}
	if msg.Metadata.Get("type") != string(TypeTestStaged) {
		t.Errorf("unexpected type metadata %q", msg.Metadata.Get("type"))
	}

	var got Event
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Version != 3 || got.DeploymentID != "dep-3" || got.ModelID != "model-3" {
		t.Errorf("unexpected payload %+v", got)
	}
	if got.CorrelationID != "abcd1234" {
		t.Errorf("expected correlation id from context, got %q", got.CorrelationID)
	}
}

func TestWatermillPublisher_Closed(t *testing.T) {
	pub, _ := NewChannelPublisher("custom.topic")
	if pub.Topic() != "custom.topic" {
		t.Errorf("unexpected topic %s", pub.Topic())
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := pub.Publish(context.Background(), New(TypePromoted)); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, *Event) error {
	f.calls++
	return errors.New("broker down")
}
func (f *failingPublisher) Close() error { return nil }

func TestEmit_SwallowsErrors(t *testing.T) {
	f := &failingPublisher{}
	Emit(context.Background(), f, New(TypeTestCleaned))
	Emit(context.Background(), nil, New(TypeTestCleaned))
	if f.calls != 1 {
		t.Errorf("expected one publish attempt, got %d", f.calls)
	}
}

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATSPublisher_DeliversEvent(t *testing.T) {
	ns := runNATSServer(t)

	nc, err := natsgo.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync(DefaultTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub, err := NewNATSPublisher(NATSConfig{URL: ns.ClientURL()})
	if err != nil {
		t.Fatalf("NewNATSPublisher: %v", err)
	}
	defer pub.Close() //nolint:errcheck // test cleanup

	ev := New(TypePromoted)
	ev.Version = 7
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	var got Event
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != ev.EventID || got.Type != TypePromoted || got.Version != 7 {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestNewNATSPublisher_RequiresURL(t *testing.T) {
	if _, err := NewNATSPublisher(NATSConfig{}); err == nil {
		t.Error("expected error without URL")
	}
}

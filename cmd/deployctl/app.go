// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/config"
	"github.com/tomtom215/recdeploy/internal/deploy"
	"github.com/tomtom215/recdeploy/internal/events"
	"github.com/tomtom215/recdeploy/internal/hosting"
	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/statestore"
)

// errHostingNotConfigured is returned by commands that call the gateway
var errHostingNotConfigured = errors.New("hosting.base_url is not configured (set it in the config file or DEPLOYCTL_HOSTING_URL)")

// app is everything one command needs, wired from configuration
type app struct {
	cfg     *config.Config
	store   statestore.Store
	backups *backup.Manager
	client  hosting.Client
	events  events.Publisher
	orch    *deploy.Orchestrator
}

// openApp wires the state store, backups, hosting client and event publisher.
// With needHosting set, a missing gateway URL is an error.
func openApp(ctx context.Context, cfg *config.Config, needHosting bool) (a *app, err error) {
	if needHosting && !cfg.HostingConfigured() {
		return nil, errHostingNotConfigured
	}

	a = &app{cfg: cfg, events: events.NopPublisher{}}
	defer func() {
		if err != nil {
			a.Close() //nolint:errcheck // Best effort cleanup on error
		}
	}()

	a.store, err = statestore.Open(statestore.Options{
		Backend:    cfg.State.Backend,
		BackupRoot: cfg.Paths.BackupRoot,
		BadgerDir:  cfg.BadgerDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	a.backups, err = backup.NewManager(&backup.Config{
		BackupRoot:  cfg.Paths.BackupRoot,
		ArtifactDir: cfg.Paths.ArtifactDir,
		ResultsDir:  cfg.Paths.ResultsDir,
		ProjectName: cfg.Project.Name,
		Retention: backup.RetentionPolicy{
			MinCount:             cfg.Backup.MinCount,
			MaxCount:             cfg.Backup.MaxCount,
			MaxAgeDays:           cfg.Backup.MaxAgeDays,
			KeepLatestPerVersion: cfg.Backup.KeepLatestPerVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	if cfg.HostingConfigured() {
		if a.client, err = newHostingClient(cfg); err != nil {
			return nil, err
		}
	}

	pub, err := newPublisher(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}
	a.events = pub

	a.orch, err = deploy.New(ctx, a.store, a.client, deployConfig(cfg),
		deploy.WithBackups(a.backups),
		deploy.WithEvents(a.events),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the publisher and the state store
func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func newHostingClient(cfg *config.Config) (hosting.Client, error) {
	h := cfg.Hosting
	client, err := hosting.NewHTTPClient(hosting.HTTPConfig{
		BaseURL:          h.BaseURL,
		Token:            h.Token,
		Timeout:          h.Timeout,
		RateLimit:        h.RateLimit,
		Burst:            h.Burst,
		ProvisionTimeout: h.ProvisionTimeout,
		PollInterval:     h.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	logging.Debug().
		Str("base_url", h.BaseURL).
		Str("token", logging.SanitizeToken(h.Token)).
		Bool("circuit_breaker", h.CircuitBreaker.Enabled).
		Msg("Hosting client configured")

	if !h.CircuitBreaker.Enabled {
		return client, nil
	}
	return hosting.NewCircuitBreakerClient(client, hosting.CircuitBreakerConfig{
		Name:                "hosting-api",
		MaxRequests:         h.CircuitBreaker.MaxRequests,
		Interval:            h.CircuitBreaker.Interval,
		Timeout:             h.CircuitBreaker.Timeout,
		ConsecutiveFailures: h.CircuitBreaker.ConsecutiveFailures,
	}), nil
}

// newPublisher builds the configured event publisher. The channel backend
// logs every event in-process.
func newPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return events.NopPublisher{}, nil
	case "channel":
		pub, ch := events.NewChannelPublisher(cfg.Topic)
		if err := logEvents(ctx, ch, cfg.Topic); err != nil {
			pub.Close() //nolint:errcheck // Best effort cleanup on error
			return nil, err
		}
		return pub, nil
	case "nats":
		pub, err := events.NewNATSPublisher(events.NATSConfig{
			URL:       cfg.NATSURL,
			Topic:     cfg.Topic,
			JetStream: cfg.JetStream,
		})
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// logEvents subscribes to topic and logs each event until ch is closed
func logEvents(ctx context.Context, ch *gochannel.GoChannel, topic string) error {
	msgs, err := ch.Subscribe(context.WithoutCancel(ctx), topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	go func() {
		for msg := range msgs {
			logging.Info().
				Str("topic", topic).
				RawJSON("event", msg.Payload).
				Msg("Lifecycle event")
			msg.Ack()
		}
	}()
	return nil
}

func deployConfig(cfg *config.Config) deploy.Config {
	p := cfg.Promotion
	return deploy.Config{
		ProjectName: cfg.Project.Name,
		Compute: hosting.ComputeConfig{
			Shape:    cfg.Hosting.Compute.Shape,
			OCPUs:    cfg.Hosting.Compute.OCPUs,
			MemoryGB: cfg.Hosting.Compute.MemoryGB,
		},
		Verify: deploy.VerifyConfig{
			InitialDelay: p.InitialDelay,
			Interval:     p.Interval,
			MaxInterval:  p.MaxInterval,
			Multiplier:   p.Multiplier,
			Timeout:      p.Timeout,
			ReadTimeout:  p.ReadTimeout,
		},
		BackupBeforeStage: p.BackupBeforeStage,
		StateBackend:      cfg.State.Backend,
	}
}

// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"github.com/tomtom215/recdeploy/internal/config"
	"github.com/tomtom215/recdeploy/internal/logging"
)

// rootOptions holds the persistent flags and the loaded configuration
type rootOptions struct {
	configPath  string
	logLevel    string
	jsonOutput  bool
	metricsAddr string

	cfg           *config.Config
	metricsServer *http.Server
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "deployctl",
		Short: "Manage recommender model deployments",
		Long: `deployctl stages trained recommender models as test deployments, promotes
them to production by swapping the production deployment's model in place,
and recovers from failed or half-finished promotions.

Every model gets a version number. The first production model is v1 and each
promotion increments the version by one. Local deployment state and artifact
backups live under the configured backup root.

Typical workflow:
  deployctl stage --users 12500 --products 840
  deployctl promote
  deployctl status`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.teardown(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $DEPLOYCTL_CONFIG or ./deployctl.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")

	cmd.AddCommand(
		newStatusCmd(opts),
		newStageCmd(opts),
		newPromoteCmd(opts),
		newCleanupTestCmd(opts),
		newImportCmd(opts),
		newRollbackCmd(opts),
		newRepairCmd(opts),
		newRepairFromBackupCmd(opts),
		newBackupCmd(opts),
		newBackupsCmd(opts),
		newStateCmd(opts),
	)
	return cmd
}

// setup loads configuration, configures logging and starts the metrics listener
func (o *rootOptions) setup(ctx context.Context) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	o.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	if cfg.Metrics.Addr != "" {
		return o.startMetricsServer(ctx, cfg.Metrics.Addr)
	}
	return nil
}

func (o *rootOptions) startMetricsServer(ctx context.Context, addr string) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	o.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := o.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	logging.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}

// teardown pushes metrics when a Pushgateway is configured and stops the listener
func (o *rootOptions) teardown(ctx context.Context) error {
	if o.cfg != nil && o.cfg.Metrics.PushgatewayURL != "" {
		err := push.New(o.cfg.Metrics.PushgatewayURL, o.cfg.Metrics.Job).
			Gatherer(prometheus.DefaultGatherer).
			Grouping("project", o.cfg.Project.Name).
			PushContext(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("url", o.cfg.Metrics.PushgatewayURL).Msg("Failed to push metrics")
		}
	}

	if o.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
	return nil
}

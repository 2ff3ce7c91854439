package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/barsync/internal/heartbeat"
	"github.com/rickgao/barsync/internal/poller"
	"github.com/rickgao/barsync/internal/stream"
	"github.com/rickgao/barsync/internal/version"
)

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the REST poller and the WebSocket stream until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd)
		},
	}
}

func (a *app) runIngest(cmd *cobra.Command) error {
	cfg := a.cfg
	logger := a.logger
	series := cfg.Series()

	logger.Info("starting ingest",
		"version", version.Version,
		"series", series.String(),
		"stream", cfg.Stream.IsEnabled(),
	)

	st, err := a.openStore(cmd)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	services := []string{heartbeat.ServiceName(poller.ServiceComponent, series)}

	g, ctx := errgroup.WithContext(cmd.Context())

	p := poller.New(poller.Config{
		Series:        series,
		Interval:      cfg.Poller.Interval,
		ErrorBackoff:  cfg.Poller.ErrorBackoff,
		Limit:         cfg.Poller.Limit,
		ConfirmedOnly: cfg.Poller.ConfirmedOnly,
	}, a.fetcher(), st, st, logger.With("component", poller.ServiceComponent))
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return p.Stop(stopCtx)
	})

	if cfg.Stream.IsEnabled() {
		sub := stream.NewSubscriber(stream.SubscriberConfig{
			Client: stream.ClientConfig{
				URL:          cfg.Exchange.WSURL,
				PingInterval: cfg.Stream.PingInterval,
				ReadTimeout:  cfg.Stream.ReadTimeout,
				BufferSize:   cfg.Stream.BufferSize,
			},
			Symbol:             series.Symbol,
			Timeframe:          series.Timeframe,
			ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
		}, logger.With("component", "subscriber"))

		runnerCfg := stream.DefaultRunnerConfig(series)
		runnerCfg.HeartbeatInterval = cfg.Stream.HeartbeatInterval
		runnerCfg.StoreRetries = cfg.Stream.StoreRetries
		runner := stream.NewRunner(runnerCfg, sub, st, st, logger.With("component", stream.ServiceComponent))

		services = append(services, heartbeat.ServiceName(stream.ServiceComponent, series))
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(st, series.Source, services, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("ingest running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	err = g.Wait()
	logger.Info("ingest stopped", "polls", p.Stats().Cycles, "poll_errors", p.Stats().Errors)
	return err
}

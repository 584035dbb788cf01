package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/discovery"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/web"
)

// app wires the process together: one HTTP server carrying the relay
// endpoints, the pages, and the operational endpoints.
type app struct {
	cfg config.Config
	log *slog.Logger

	metrics   *metrics.Metrics
	registry  *registry.Registry
	transfers *transfer.Store

	http  *httpserver.Server
	relay *relay.Server
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       logger,
		metrics:   metrics.New(),
		registry:  registry.New(),
		transfers: transfer.NewStore(),
	}

	a.http = httpserver.New(cfg, logger, build)
	a.relay = relay.NewServer(relay.Config{
		Registry:             a.registry,
		Transfers:            a.transfers,
		Metrics:              a.metrics,
		Logger:               logger,
		AllowedOrigins:       cfg.AllowedOrigins,
		PingInterval:         cfg.PingInterval,
		IdleTimeout:          cfg.IdleTimeout,
		MaxMessageBytes:      cfg.MaxMessageBytes,
		ConnectionQueueBytes: cfg.ConnectionQueueBytes,
		OutboundQueueFrames:  cfg.OutboundQueueFrames,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		MaxBytesPerSecond:    cfg.MaxBytesPerSecond,
		MaxConnections:       cfg.MaxConnections,
	})
	a.relay.RegisterRoutes(a.http.Mux())
	a.http.AddReadyCheck("relay", a.relay.Ready)

	pages, err := web.New(a.transfers, logger)
	if err != nil {
		return nil, fmt.Errorf("load web assets: %w", err)
	}
	pages.RegisterRoutes(a.http.Mux())

	a.http.Mux().Handle("GET /metrics", metrics.PrometheusHandler(a.metrics, map[string]func() int{
		"sessions":         a.relay.Sessions().Len,
		"registered_ids":   a.registry.Len,
		"transfers_active": a.transfers.Len,
	}))

	return a, nil
}

// run serves on ln until ctx ends or the server fails, then shuts down
// gracefully: the HTTP server stops accepting, then live sessions are closed.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.http.Serve(ln)
	}()

	adv := a.startDiscovery(ln.Addr())
	defer adv.Stop()

	select {
	case err := <-errCh:
		a.closeRelay()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so
	// Shutdown only waits for plain requests. Sessions are closed afterwards.
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http server shutdown failed", "err", err)
	}
	if err := a.relay.Close(shutdownCtx); err != nil {
		a.log.Error("relay sessions did not close in time", "err", err, "sessions", a.relay.Sessions().Len())
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server exited after shutdown: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

func (a *app) closeRelay() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	_ = a.relay.Close(ctx)
}

// startDiscovery advertises the listener over mDNS when enabled. Failures are
// logged and the server keeps running without advertisement.
func (a *app) startDiscovery(addr net.Addr) *discovery.Advertiser {
	if !a.cfg.MDNSEnabled {
		return nil
	}
	port, err := discovery.PortFromAddr(addr)
	if err != nil {
		a.log.Warn("mdns disabled: cannot determine listen port", "err", err)
		return nil
	}
	adv, err := discovery.NewAdvertiser(discovery.Config{
		Instance:      a.cfg.MDNSInstance,
		Port:          port,
		PublicBaseURL: a.cfg.PublicBaseURL,
		Logger:        a.log,
	})
	if err != nil {
		a.log.Warn("mdns disabled", "err", err)
		return nil
	}
	if err := adv.Start(); err != nil {
		a.log.Warn("mdns advertisement failed", "err", err)
		return nil
	}
	return adv
}

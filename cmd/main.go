package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/heartbeat-keeper/config"
	"github.com/angeloszaimis/heartbeat-keeper/internal/accounts"
	"github.com/angeloszaimis/heartbeat-keeper/internal/caller"
	"github.com/angeloszaimis/heartbeat-keeper/internal/connstate"
	"github.com/angeloszaimis/heartbeat-keeper/internal/handler"
	"github.com/angeloszaimis/heartbeat-keeper/internal/heartbeat"
	"github.com/angeloszaimis/heartbeat-keeper/internal/httpserver"
	"github.com/angeloszaimis/heartbeat-keeper/internal/metrics"
	"github.com/angeloszaimis/heartbeat-keeper/internal/session"
	"github.com/angeloszaimis/heartbeat-keeper/internal/storage"
	"github.com/angeloszaimis/heartbeat-keeper/internal/worker"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	accts, err := accounts.Load(cfg.Accounts.ProxiesFile, cfg.Accounts.TokensFile, log)
	if err != nil {
		log.Error("Failed to load accounts", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, accts, log); err != nil {
		log.Error("Heartbeat keeper failed", slog.Any("err", err))
		os.Exit(1)
	}
}

type app struct {
	collector    *metrics.Collector
	tracker      *connstate.Tracker
	registry     *session.Registry
	auth         *session.Authenticator
	pinger       *heartbeat.Pinger
	orchestrator *worker.Orchestrator
	transport    *caller.HTTPTransport
	store        io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	store, closer, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN, log)
	if err != nil {
		return nil, err
	}

	transport := caller.NewHTTPTransport(caller.Headers{
		UserAgent:      cfg.API.UserAgent,
		AcceptLanguage: cfg.API.AcceptLanguage,
		Referer:        cfg.API.Referer,
	})
	c := caller.New(transport, caller.Options{
		MaxAttempts: cfg.Request.MaxAttempts,
		Timeout:     cfg.RequestTimeout(),
		Backoff: caller.Backoff{
			Base: cfg.Request.BackoffBase,
			Unit: cfg.BackoffUnit(),
		},
	}, log)

	collector := metrics.NewCollector(metricsBufferSize, log)
	tracker := connstate.NewTracker(cfg.Heartbeat.FailureThreshold)
	registry := session.NewRegistry()
	auth := session.NewAuthenticator(c, registry, store, cfg.API.SessionURL, collector, log)

	pinger := heartbeat.New(c, auth, tracker, collector, heartbeat.Options{
		Endpoints: cfg.API.PingURLs,
		Interval:  cfg.HeartbeatInterval(),
		Version:   cfg.API.ProtocolVersion,
	}, log)

	orchestrator := worker.New(auth, pinger, worker.Options{
		MaxConcurrent: int64(cfg.Workers.MaxConcurrent),
		ReauthDelay:   cfg.ReauthDelay(),
	}, log)

	return &app{
		collector:    collector,
		tracker:      tracker,
		registry:     registry,
		auth:         auth,
		pinger:       pinger,
		orchestrator: orchestrator,
		transport:    transport,
		store:        closer,
	}, nil
}

func (a *app) Close() error {
	a.transport.CloseIdleConnections()
	return a.store.Close()
}

// run drives the workers until ctx is cancelled or every worker has exited.
func run(ctx context.Context, cfg *config.Config, accts []accounts.Account, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("Failed to close session store", slog.Any("err", err))
		}
	}()

	a.collector.Start(ctx)

	var srv *httpserver.Server
	srvErrCh := make(chan error, 1)
	if cfg.Server.Enabled {
		router := setupRouter(handler.NewStatusHandler(a.tracker, a.registry, a.orchestrator), a.collector, log)
		srv, err = httpserver.New(cfg.Server.Address, router, log)
		if err != nil {
			return err
		}
		go func() {
			srvErrCh <- srv.Start()
		}()
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.orchestrator.Run(ctx, accts)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case <-workersDone:
		log.Info("All workers exited")
	case err := <-srvErrCh:
		if err != nil {
			runErr = errors.Join(errors.New("status server stopped"), err)
		}
	}

	cancel()
	<-workersDone

	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	}

	return runErr
}

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Rin0913/devicewatch/internal/config"
	"github.com/Rin0913/devicewatch/internal/device"
	"github.com/Rin0913/devicewatch/internal/httpserver"
	"github.com/Rin0913/devicewatch/internal/label"
	"github.com/Rin0913/devicewatch/internal/logger"
	"github.com/Rin0913/devicewatch/internal/probe"
	"github.com/Rin0913/devicewatch/internal/redisclient"
	"github.com/Rin0913/devicewatch/internal/scheduler"
	"github.com/Rin0913/devicewatch/internal/status"
	"github.com/Rin0913/devicewatch/internal/worker"
)

const (
	restartBackoff  = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Run wires redis, the liveness monitor and the HTTP API, and blocks until
// ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	redisClient := redisclient.NewClient(cfg.Redis)
	defer redisClient.Close()

	if err := redisclient.Ping(ctx, redisClient); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	return serve(ctx, cfg, ln,
		device.NewRedisRepository(redisClient),
		label.NewRedisRepository(redisClient),
	)
}

func serve(ctx context.Context, cfg *config.Config, ln net.Listener, deviceRepo device.Repository, labelRepo label.Repository) error {
	log := logger.WithComponent("server")

	engine := probe.NewEngine(cfg.Monitor.DefaultMethod, logger.WithComponent("probe"))
	engine.LoadCheckers(cfg.Checkers)

	store := status.NewStore()
	sched := scheduler.New(
		device.NewRoster(deviceRepo),
		engine,
		store,
		scheduler.Config{
			Interval:       cfg.Monitor.Interval,
			ProbeTimeout:   cfg.Monitor.ProbeTimeout,
			MaxConcurrency: cfg.Monitor.MaxConcurrency,
		},
		logger.WithComponent("scheduler"),
	)

	// a single scheduler keeps cycles serialized
	manager := worker.NewManager(1, restartBackoff, logger.WithComponent("worker"), func(int) worker.Worker {
		return sched
	})
	manager.Start(ctx)
	defer manager.Stop()

	api := httpserver.NewServer(deviceRepo, labelRepo, sched, engine, logger.WithComponent("http"))

	s := &http.Server{
		Handler:        api.Handler(cfg.CORS.AllowedOrigins),
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.Shutdown(shutdownCtx)

	case err := <-errCh:
		return err
	}
}

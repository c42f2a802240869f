package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rin0913/devicewatch/internal/app/server"
	"github.com/Rin0913/devicewatch/internal/config"
	"github.com/Rin0913/devicewatch/internal/logger"
)

func main() {
	configPath := flag.String("config", "devicewatch.yaml", "path to the config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error().Err(err).Msg("invalid config")
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		logger.Error().Err(err).Msg("failed to init logger")
		os.Exit(1)
	}

	if err := server.Run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}

	logger.Info().Msg("See you!")
}

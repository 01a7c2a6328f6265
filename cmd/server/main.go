package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"webdl/internal/config"
	"webdl/internal/server"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		log.Fatal("failed to create download directory", zap.Error(err))
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	if err := srv.Start(context.Background()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// Package server wires the HTTP API: the download form UI, the blocking
// download action, the progress poller and cleanup.
package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"webdl/internal/config"
	"webdl/internal/database"
	"webdl/internal/downloader"
	"webdl/internal/progress"
	"webdl/internal/task"
)

type Server struct {
	cfg     config.Config
	fetcher *downloader.Fetcher
	store   *progress.Store
	history *task.Repository
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	db, err := database.Init(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}

	history, err := task.NewRepository(db)
	if err != nil {
		return nil, fmt.Errorf("failed to init history: %w", err)
	}

	return &Server{
		cfg:     cfg,
		fetcher: downloader.New(cfg),
		store:   progress.NewStore(cfg.ProgressTTL.Std()),
		history: history,
		log:     log,
	}, nil
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Static files (web UI) and completed downloads
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.WebDir)))
	mux.Handle("/downloads/", http.StripPrefix("/downloads/", http.FileServer(http.Dir(s.cfg.DownloadDir))))

	// API: single endpoint dispatched by the "action" selector
	mux.HandleFunc("/api", s.handleAPI)

	return s.withRequestLog(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.store.Run(ctx)

	s.log.Info("server starting", zap.String("addr", s.cfg.ListenAddr))
	return http.ListenAndServe(s.cfg.ListenAddr, s.Handler())
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"webdl/internal/downloader"
	"webdl/internal/progress"
	"webdl/internal/storage"
)

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	File    string `json:"file,omitempty"`
}

// respondJSON writes v as UTF-8 JSON. HTML escaping is off so non-ASCII
// error messages round-trip exactly.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, apiResponse{Status: "error", Message: message})
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	switch r.FormValue("action") {
	case "download":
		s.handleDownload(w, r)
	case "progress":
		s.handleProgress(w, r)
	case "cleanup":
		s.handleCleanup(w, r)
	case "cancel":
		s.handleCancel(w, r)
	case "history":
		s.handleHistory(w, r)
	default:
		respondError(w, http.StatusBadRequest, "unknown action")
	}
}

// handleDownload runs the whole transfer before answering. Live progress
// is observable only through the progress action; the two requests meet
// in the progress store.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if !progress.ValidToken(token) {
		respondError(w, http.StatusBadRequest, "invalid token")
		return
	}

	rawURL := strings.TrimSpace(r.FormValue("url"))
	u, err := downloader.ValidateURL(rawURL)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := os.MkdirAll(s.cfg.DownloadDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "download directory is not writable")
		return
	}

	// Deliberately not derived from r.Context(): an abandoned page must not
	// abort the transfer, only the explicit cancel action does.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.store.Begin(token, cancel); err != nil {
		if errors.Is(err, progress.ErrInFlight) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := storage.DeriveName(r.FormValue("filename"), u.Path, time.Now())
	dst, finalName, err := storage.CreateUnique(s.cfg.DownloadDir, name)
	if err != nil {
		s.store.Finish(token, progress.Record{
			Status:   progress.StatusError,
			Filename: name,
			Message:  "cannot create file on server",
		})
		respondError(w, http.StatusInternalServerError, "cannot create file on server")
		return
	}
	dstPath := filepath.Join(s.cfg.DownloadDir, finalName)

	zero := 0.0
	s.store.Update(token, progress.Record{
		Status:   progress.StatusStarting,
		Percent:  &zero,
		Filename: finalName,
	})

	historyID, err := s.history.Create(token, rawURL, finalName)
	if err != nil {
		s.log.Warn("failed to record download start", zap.Error(err))
	}

	s.log.Info("download started",
		zap.String("token", token),
		zap.String("url", rawURL),
		zap.String("filename", finalName))

	written, err := s.fetcher.Fetch(ctx, rawURL, dst, func(sample downloader.Sample) {
		s.store.Update(token, progress.Record{
			Status:     progress.StatusDownloading,
			Downloaded: sample.Downloaded,
			Total:      sample.Total,
			Percent:    sample.Percent,
			Speed:      sample.Speed,
			Filename:   finalName,
		})
	})
	dst.Close()

	if err != nil {
		os.Remove(dstPath)
		msg := err.Error()
		s.store.Finish(token, progress.Record{
			Status:   progress.StatusError,
			Filename: finalName,
			Message:  msg,
		})
		if historyID != 0 {
			if herr := s.history.Finish(historyID, "error", 0, msg); herr != nil {
				s.log.Warn("failed to record download failure", zap.Error(herr))
			}
		}
		s.log.Warn("download failed",
			zap.String("token", token),
			zap.String("url", rawURL),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, msg)
		return
	}

	hundred := 100.0
	s.store.Finish(token, progress.Record{
		Status:     progress.StatusDone,
		Downloaded: written,
		Total:      written,
		Percent:    &hundred,
		Filename:   finalName,
		Relative:   "downloads/" + url.PathEscape(finalName),
	})
	if historyID != 0 {
		if herr := s.history.Finish(historyID, "done", written, ""); herr != nil {
			s.log.Warn("failed to record download completion", zap.Error(herr))
		}
	}

	s.log.Info("download finished",
		zap.String("token", token),
		zap.String("filename", finalName),
		zap.String("size", humanize.Bytes(uint64(written))))

	respondJSON(w, http.StatusOK, apiResponse{Status: "ok", File: "downloads/" + finalName})
}

// handleProgress is read-only and never blocks on the transfer. A missing
// record means "no information available", not "finished".
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if !progress.ValidToken(token) {
		respondError(w, http.StatusBadRequest, "invalid token")
		return
	}

	rec, ok := s.store.Get(token)
	if !ok {
		respondJSON(w, http.StatusOK, apiResponse{Status: "idle"})
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if !progress.ValidToken(token) {
		respondError(w, http.StatusBadRequest, "invalid token")
		return
	}

	s.store.Delete(token)
	respondJSON(w, http.StatusOK, apiResponse{Status: "ok"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	if !progress.ValidToken(token) {
		respondError(w, http.StatusBadRequest, "invalid token")
		return
	}

	if s.store.Cancel(token) {
		s.log.Info("download cancelled", zap.String("token", token))
	}
	respondJSON(w, http.StatusOK, apiResponse{Status: "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

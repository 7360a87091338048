package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/telemetry"
)

// StatusStore is the read surface the status server needs.
type StatusStore interface {
	Counts(ctx context.Context, channel string) (map[string]int, error)
}

// Server exposes daemon health, metrics, and batch status over HTTP.
type Server struct {
	store    StatusStore
	channels []string

	mu      sync.Mutex
	reports []*models.RunReport
}

// New constructs the status server.
func New(store StatusStore, channels []string) *Server {
	return &Server{store: store, channels: channels}
}

// RecordReport keeps the most recent batch reports for /status.
func (s *Server) RecordReport(r *models.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	if len(s.reports) > 20 {
		s.reports = s.reports[len(s.reports)-20:]
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := map[string]map[string]int{}
	for _, ch := range s.channels {
		c, err := s.store.Counts(r.Context(), ch)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		counts[ch] = c
	}

	s.mu.Lock()
	reports := make([]*models.RunReport, len(s.reports))
	copy(reports, s.reports)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"channels":    counts,
		"recent_runs": reports,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

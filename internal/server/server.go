// Package server exposes the small ops HTTP surface next to the bot:
// a health check and a read-only view of recently stored vacancies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

const defaultRecentLimit = 10

// VacancyReader is the part of the storage layer the server reads from.
type VacancyReader interface {
	GetRecentVacancies(ctx context.Context, limit int) ([]*model.Vacancy, error)
}

type Server struct {
	http *http.Server
}

func New(addr string, repo VacancyReader) *Server {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealth)
	r.Get("/api/vacancies/recent", handleRecent(repo))
	return &Server{
		http: &http.Server{Addr: addr, Handler: r},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Println("[server] shutdown:", err)
		}
	}()
	log.Printf("[server] listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "hh-vacancy-bot"})
}

func handleRecent(repo VacancyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = v
		}
		vacancies, err := repo.GetRecentVacancies(r.Context(), limit)
		if err != nil {
			log.Println("[server] recent vacancies:", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
			return
		}
		if vacancies == nil {
			vacancies = []*model.Vacancy{}
		}
		writeJSON(w, http.StatusOK, vacancies)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("[server] encode response:", err)
	}
}

// Package dashboard serves the read-only HTTP API over the domain store:
// listing, aggregate stats, and the top-ranked candidates.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/cache"
	"github.com/sells-group/domain-scout/internal/store"
)

const (
	statsCacheKey = "dashboard:stats"
	statsCacheTTL = 30 * time.Second

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Server is the read-only dashboard API.
type Server struct {
	store store.Store
	cache cache.Cache
}

// NewServer creates a dashboard server over the given store.
func NewServer(st store.Store, c cache.Cache) *Server {
	return &Server{store: st, cache: c}
}

// Router builds the chi router with CORS enabled for browser dashboards.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/domains", s.handleDomains)
		r.Get("/domains/{domain}", s.handleDomain)
		r.Get("/stats", s.handleStats)
		r.Get("/top", s.handleTop)
	})
	return r
}

// ListenAndServe runs the API until ctx is cancelled, then drains
// connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("dashboard listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "dashboard: serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "dashboard: shutdown")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DomainFilter{
		TLD:      q.Get("tld"),
		Search:   q.Get("search"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("dir") != "asc",
		Limit:    intParam(q.Get("limit"), defaultListLimit),
		Offset:   intParam(q.Get("offset"), 0),
	}
	if v, err := strconv.ParseFloat(q.Get("min_score"), 64); err == nil {
		filter.MinScore = v
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	domains, err := s.store.ListDomains(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(domains),
		"domains": domains,
	})
}

func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetDomain(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "domain not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if body, ok, err := s.cache.Get(r.Context(), statsCacheKey); err == nil && ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := json.Marshal(stats)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.cache.Set(r.Context(), statsCacheKey, string(body), statsCacheTTL); err != nil {
		zap.L().Warn("stats cache write failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 25)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	domains, err := s.store.TopDomains(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(domains),
		"domains": domains,
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("dashboard response write failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("dashboard request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

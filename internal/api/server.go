// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/agrisense/farmchat/internal/catalog"
	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/ingest"
	"github.com/agrisense/farmchat/internal/llm"
	"github.com/agrisense/farmchat/internal/orchestrator"
	"github.com/agrisense/farmchat/internal/vector"
)

type Server struct {
	router   chi.Router
	orch     *orchestrator.Orchestrator
	ingestor *ingest.Ingestor
	catalog  *catalog.Catalog
	store    vector.Store
	provider llm.Provider
}

func NewServer(orch *orchestrator.Orchestrator, ingestor *ingest.Ingestor, cat *catalog.Catalog, store vector.Store, provider llm.Provider) *Server {
	logger := common.Logger()
	providerName := "unknown"
	if provider != nil {
		providerName = provider.Name()
	}
	logger.Info("api: building server",
		"provider", providerName,
		"vector_available", store != nil && store.Available(),
	)
	srv := &Server{
		router:   chi.NewRouter(),
		orch:     orch,
		ingestor: ingestor,
		catalog:  cat,
		store:    store,
		provider: provider,
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", s.handleHealth)

	s.router.Post("/v1/chat", s.handleChat)
	s.router.Post("/v1/documents", s.handleUpload)
	s.router.Get("/v1/documents", s.handleListDocuments)
	s.router.Delete("/v1/documents/{id}", s.handleDeleteDocument)
	s.router.Get("/v1/logs", s.handleLogs)
	s.router.Handle("/debug/vars", expvar.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providerName := ""
	if s.provider != nil {
		providerName = s.provider.Name()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"provider":         providerName,
		"vector_available": s.store != nil && s.store.Available(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Package api exposes the acquisition pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/imagefinder"
	"github.com/zombar/imagefinder/dedup"
	"github.com/zombar/imagefinder/models"
	"github.com/zombar/imagefinder/storage"
)

// Config contains server configuration.
type Config struct {
	Addr string

	// DedupDSN is the Postgres connection string for the dedup store.
	// Empty selects the in-memory store (development only: dedup does not
	// survive restarts).
	DedupDSN string

	// ArchiveBasePath enables the filesystem archive when set. S3Config
	// takes precedence when its bucket is set.
	ArchiveBasePath string
	S3              storage.S3Config

	Finder      imagefinder.Config
	CORSEnabled bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		Finder:      imagefinder.DefaultConfig(),
		CORSEnabled: true,
	}
}

// Server is the API server.
type Server struct {
	finder      *imagefinder.Finder
	store       dedup.Store
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	closeStore  func() error
}

// NewServer creates an API server and its backing pipeline.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	var (
		store      dedup.Store
		closeStore func() error
	)
	if config.DedupDSN != "" {
		pg, err := dedup.NewPostgres(dedup.Config{DSN: config.DedupDSN})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dedup store: %w", err)
		}
		store = pg
		closeStore = pg.Close
	} else {
		slog.Warn("using in-memory dedup store; records will not survive restarts")
		store = dedup.NewMemory()
	}

	var archive storage.Archiver
	switch {
	case config.S3.Bucket != "":
		s3, err := storage.NewS3(ctx, config.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 archive: %w", err)
		}
		archive = s3
	case config.ArchiveBasePath != "":
		fs, err := storage.NewFS(storage.Config{BasePath: config.ArchiveBasePath})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		archive = fs
	}

	s := &Server{
		finder:      imagefinder.New(config.Finder, store, archive),
		store:       store,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		closeStore:  closeStore,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(otelhttp.NewHandler(s.mux, "api")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // acquisitions can take most of their deadline
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/acquire", s.handleAcquire)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Start starts the API server.
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes the dedup store.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.middleware(s.mux)
}

// Finder exposes the pipeline, e.g. for the cache purge ticker.
func (s *Server) Finder() *imagefinder.Finder {
	return s.finder
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			slog.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start).String(),
			)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "dedup store unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"dedup_records": count,
		"time":          time.Now().UTC(),
	})
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.AcquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	var hints *models.FeedHints
	if req.EnclosureURL != "" || req.MediaContentURL != "" || req.RawContentHTML != "" {
		hints = &models.FeedHints{
			EnclosureURL:    req.EnclosureURL,
			MediaContentURL: req.MediaContentURL,
			RawContentHTML:  req.RawContentHTML,
		}
	}

	result, err := s.finder.AcquireImage(r.Context(), req.URL, hints)
	if err != nil {
		if errors.Is(err, imagefinder.ErrInvalidArticleURL) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("acquisition failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

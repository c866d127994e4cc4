// Package server provides the HTTP server and routing for Pulse.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/config"
	"github.com/labormetrics/pulse/internal/database"
	analyticshandlers "github.com/labormetrics/pulse/internal/modules/analytics/handlers"
	cataloghandlers "github.com/labormetrics/pulse/internal/modules/catalog/handlers"
	ingesthandlers "github.com/labormetrics/pulse/internal/modules/ingest/handlers"
	"github.com/labormetrics/pulse/internal/reliability"
	"github.com/labormetrics/pulse/internal/scheduler"
)

// handlerTimeout bounds request handling. Ingest fetches dozens of series
// and each fetch may take the client's full 30s, so this is generous; the
// http.Server write deadline must outlast it or a slow ingest run has its
// partial-result response cut off mid-write.
const handlerTimeout = 5 * time.Minute

// Config holds server configuration
type Config struct {
	Log              zerolog.Logger
	WarehouseDB      *database.DB
	CacheDB          *database.DB
	Config           *config.Config
	IngestHandler    *ingesthandlers.Handler
	AnalyticsHandler *analyticshandlers.Handler
	CatalogHandler   *cataloghandlers.Handler
	SystemHandlers   *SystemHandlers
}

// Server represents the HTTP server
type Server struct {
	router           *chi.Mux
	server           *http.Server
	log              zerolog.Logger
	cfg              *config.Config
	ingestHandler    *ingesthandlers.Handler
	analyticsHandler *analyticshandlers.Handler
	catalogHandler   *cataloghandlers.Handler
	systemHandlers   *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:           chi.NewRouter(),
		log:              cfg.Log.With().Str("component", "server").Logger(),
		cfg:              cfg.Config,
		ingestHandler:    cfg.IngestHandler,
		analyticsHandler: cfg.AnalyticsHandler,
		catalogHandler:   cfg.CatalogHandler,
		systemHandlers:   cfg.SystemHandlers,
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: handlerTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API. Either
// pointer may be nil (backups are optional); a nil pointer must stay a nil
// interface so the trigger handlers report 503 instead of dereferencing it.
func (s *Server) SetJobs(pipeline *scheduler.PipelineJob, backup *reliability.BackupJob) {
	var pipelineJob, backupJob scheduler.Job
	if pipeline != nil {
		pipelineJob = pipeline
	}
	if backup != nil {
		backupJob = backup
	}
	s.systemHandlers.SetJobs(pipelineJob, backupJob)
}

// SetSchedule exposes the cron scheduler's job list on the status endpoint.
func (s *Server) SetSchedule(schedule *scheduler.Scheduler) {
	if schedule != nil {
		s.systemHandlers.SetSchedule(schedule)
	}
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(middleware.Timeout(handlerTimeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		s.ingestHandler.RegisterRoutes(r)
		s.analyticsHandler.RegisterRoutes(r)
		s.catalogHandler.RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/runs", s.systemHandlers.HandleRecentRuns)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/pipeline", s.systemHandlers.HandleTriggerPipeline)
				r.Post("/backup", s.systemHandlers.HandleTriggerBackup)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

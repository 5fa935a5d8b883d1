package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docqa/internal/api/middlewares"
	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewRouter builds and wires all routes.
func NewRouter(cfg *config.Config, ing handlers.Ingestor, answerer handlers.Answerer, obj core.ObjectClient, log *zap.Logger) http.Handler {
	ingestHandler := handlers.NewIngestHandler(ing, obj, cfg.BucketName, log)
	jobHandler := handlers.NewJobHandler(ing, log)
	queryHandler := handlers.NewQueryHandler(answerer, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
	}))

	r.Get("/", handlers.Health)
	r.Post("/ingest-url", ingestHandler.IngestURL)
	r.Post("/ingest-file", ingestHandler.IngestFile)
	r.Post("/query", queryHandler.Query)

	r.Route("/jobs", func(jobs chi.Router) {
		jobs.Get("/", jobHandler.ListJobs)
		jobs.Get("/{id}", jobHandler.GetJob)
		jobs.Post("/{id}/retry", jobHandler.RetryJob)
	})

	return r
}

func NewServer(addr string, h http.Handler, log *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

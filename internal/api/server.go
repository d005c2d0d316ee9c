// Package api exposes straddle records, statistics and backfills over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/straddle_tracker/internal/backfill"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
	"github.com/eddiefleurent/straddle_tracker/internal/stats"
	"github.com/eddiefleurent/straddle_tracker/internal/storage"
	"github.com/eddiefleurent/straddle_tracker/internal/straddle"
)

// MaxDays bounds the days query parameter.
const MaxDays = 1000

// DefaultDays is used when days is omitted.
const DefaultDays = 30

// Server serves the JSON API.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	calc     *straddle.Calculator
	engine   *stats.Engine
	backfill *backfill.Orchestrator
	store    storage.Interface
	logger   logrus.FieldLogger
	listen   string
	timeout  time.Duration

	// Background backfills run on ctx so Shutdown can stop them.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	job *Job
}

// Config configures the listener.
type Config struct {
	Listen         string
	RequestTimeout time.Duration
}

// NewServer wires the handlers. The orchestrator's progress callback is
// owned by the server from here on.
func NewServer(cfg Config, calc *straddle.Calculator, engine *stats.Engine, orch *backfill.Orchestrator, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8000"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:   chi.NewRouter(),
		calc:     calc,
		engine:   engine,
		backfill: orch,
		store:    calc.Store(),
		logger:   logger.WithField("component", "api"),
		listen:   cfg.Listen,
		timeout:  cfg.RequestTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}
	orch.OnProgress(s.recordProgress)

	s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.timeout))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/straddle", func(r chi.Router) {
		r.Get("/today", s.handleToday)
		r.Post("/calculate", s.handleCalculate)
		r.Get("/history", s.handleHistory)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/statistics/multi-timeframe", s.handleMultiWindow)
		r.Get("/expected-move", s.handleExpectedMove)
		r.Get("/export/csv", s.handleExportCSV)
		r.Get("/status", s.handleStatus)

		r.Get("/backfill/scenarios", s.handleScenarios)
		r.Get("/backfill/job", s.handleJob)
		r.Post("/backfill/scenario/{scenario}", s.handleBackfillScenario)
		r.Post("/backfill/custom", s.handleBackfillCustom)
	})
}

// requestLogger logs each request through the server's logger instead of
// chi's stdlib logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request")
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.listen)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, cancels running backfills and waits for them
// to return their partial summary.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Wait blocks until background backfills have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// storageStatus maps store failures to 503 and everything else to 500.
func storageStatus(err error) int {
	if errors.Is(err, models.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

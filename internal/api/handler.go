package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"okx-exec/internal/engine"
	"okx-exec/internal/events"
	"okx-exec/internal/monitor"
	"okx-exec/internal/persistence"
	"okx-exec/internal/reconciliation"
	"okx-exec/pkg/db"
)

// JournalReader serves historical orders and drift findings.
type JournalReader interface {
	Orders(ctx context.Context, instrument string, limit int) ([]db.Order, error)
	Drift(ctx context.Context, limit int) ([]db.Drift, error)
	Metrics() persistence.BatchWriterMetrics
}

// DriftReporter exposes the latest reconciliation result.
type DriftReporter interface {
	Last() *reconciliation.Report
}

// Server wires read-only HTTP endpoints around a running engine.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Journal JournalReader // optional
	Recon   DriftReporter // optional
	Bus     *events.Bus
	Metrics *monitor.Metrics // optional

	log *logrus.Entry
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Journal JournalReader
	Recon   DriftReporter
	Bus     *events.Bus
	Metrics *monitor.Metrics
	Log     *logrus.Entry
}

func NewServer(eng engine.Service, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "api")

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, opts.Metrics))
	r.Use(NewRateLimiter(20, 50).Middleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Engine:  eng,
		Journal: opts.Journal,
		Recon:   opts.Recon,
		Bus:     opts.Bus,
		Metrics: opts.Metrics,
		log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.GET("/metrics", s.getPromMetrics)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/account", s.getAccount)
		api.GET("/orders", s.getOpenOrders)
		api.GET("/strategy", s.getStrategy)
		api.GET("/journal/orders", s.getJournalOrders)
		api.GET("/journal/drift", s.getJournalDrift)
		api.GET("/reconciliation", s.getReconciliation)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

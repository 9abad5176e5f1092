// Package httpx is the operations HTTP surface: health, metrics, job record
// queries, manual retention runs and demo background jobs.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"log-inspection/internal/inspection"
	"log-inspection/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// Trigger starts a retention sweep outside its schedule and returns its trace id.
type Trigger interface {
	Trigger(ctx context.Context) (string, error)
}

// Dispatcher runs detached background work. It is implemented by *worker.Factory.
type Dispatcher interface {
	Go(ctx context.Context, configure func(*worker.Worker)) (string, error)
}

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Store      inspection.Store
	Dispatcher Dispatcher
	Triggers   map[inspection.Collection]Trigger
	Metrics    http.Handler // nil disables /metrics
	Logger     *slog.Logger
	// WorkContext is the parent of detached work started by requests. It
	// must outlive the request, typically the process context.
	WorkContext context.Context
}

// Server serves the ops routes.
type Server struct {
	addr   string
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
}

// New builds the router. Nothing listens until Run.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WorkContext == nil {
		deps.WorkContext = context.Background()
	}
	s := &Server{
		addr: addr,
		deps: deps,
		log:  deps.Logger.With("component", "http"),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Name identifies the server as a host service.
func (s *Server) Name() string { return "http" }

// Run listens on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), traceMiddleware(), s.logMiddleware())

	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api")
	api.GET("/jobs", s.listJobs)
	api.POST("/jobs/demo", s.runDemo)
	api.POST("/retention/:collection/run", s.runRetention)
	return r
}

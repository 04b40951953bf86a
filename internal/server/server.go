// Package server exposes the concert agent over HTTP: a JSON API, a
// websocket push channel for delayed replies and the static widget assets.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/concertbot/server/internal/agent/graph/conversations"
	"github.com/concertbot/server/internal/agent/model"
	"github.com/concertbot/server/internal/geo"
	logx "github.com/concertbot/server/pkg/logger"
	"github.com/concertbot/server/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// Agent is the part of service.Service the HTTP layer needs.
type Agent interface {
	StartSession(ctx context.Context, coords *geo.Coordinates) (*model.Session, *model.Reply, error)
	UpdateLocation(ctx context.Context, sessionID string, coords *geo.Coordinates) (*model.Session, *model.Reply, error)
	HandleMessage(ctx context.Context, sessionID, text string) (*model.Reply, error)
	Session(ctx context.Context, sessionID string) (*model.Session, error)
	History(ctx context.Context, sessionID string) ([]conversations.Entry, error)
	Pending(ctx context.Context, sessionID string) ([]*model.Reply, error)
	Subscribe(ctx context.Context, sessionID string) (<-chan *model.Reply, func(), error)
	EndSession(ctx context.Context, sessionID string) error
}

type Server struct {
	agent Agent
	cfg   model.ServerConfig
}

func New(agent Agent, cfg model.ServerConfig) *Server {
	return &Server{agent: agent, cfg: cfg}
}

// Router constructs the chi mux with all routes wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors(s.cfg.AllowOrigin))

	r.Get("/health", s.handleHealth())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession())
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession())
			r.Delete("/", s.handleDeleteSession())
			r.Put("/location", s.handleUpdateLocation())
			r.Post("/messages", s.handlePostMessage())
			r.Get("/messages", s.handleHistory())
			r.Get("/pending", s.handlePending())
		})
	})

	r.Get("/ws/sessions/{id}", s.handleWebSocket())

	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logx.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

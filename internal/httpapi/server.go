// Package httpapi exposes the per-user focus state over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"focus-keeper/internal/auth"
	"focus-keeper/internal/userdoc"
)

// Sessions is the narrow read/mutate surface the handlers need.
type Sessions interface {
	State(ctx context.Context, key string) (*userdoc.Document, error)
	Start(ctx context.Context, key string, durationMin int) (*userdoc.Session, error)
	Finish(ctx context.Context, key string) (*userdoc.Session, error)
}

type Server struct {
	sessions        Sessions
	verifier        *auth.Verifier
	requireInitData bool
	staticDir       string
}

type Option func(*Server)

// WithVerifier enables X-Telegram-Init-Data authentication.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// RequireInitData rejects requests that identify themselves by a bare tgId.
func RequireInitData(on bool) Option {
	return func(s *Server) { s.requireInitData = on }
}

// WithStaticDir serves the mini-app bundle from dir for unmatched paths.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/session/start", s.handleStart)
		r.Post("/session/finish", s.handleFinish)
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("🌐 http listening on %s", addr)

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return runErr
	}
	return nil
}

package http

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"turnstile/internal/platform/config"
	"turnstile/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

// Server owns the chi mux and the listener the API serves on
type Server struct {
	mux *chi.Mux
	srv *stdhttp.Server

	mu    sync.Mutex
	bound string
}

// NewServer reads API_PORT from cfg; a bare port such as 4000 listens on all interfaces
func NewServer(cfg config.Conf) *Server {
	addr := cfg.MayString("API_PORT", ":4000")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	m := chi.NewRouter()
	return &Server{
		mux: m,
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Router returns the mount surface over the server mux
func (s *Server) Router() Router { return AdaptChi(s.mux) }

// Handler returns the root handler
func (s *Server) Handler() stdhttp.Handler { return s.mux }

// Addr is the bound address once Run is listening and the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != "" {
		return s.bound
	}
	return s.srv.Addr
}

// Run serves until Shutdown; a clean shutdown returns nil
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	logger.C(ctx).Info().Str("addr", s.Addr()).Msg("http listening")
	if err := s.srv.Serve(ln); !errors.Is(err, stdhttp.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"space-invaders-server/internal/directory"
)

// Server is the HTTP API server fronting a room Directory.
type Server struct {
	dir    *directory.Directory
	router *chi.Mux
	gate   *ClientGate
}

// NewServer creates a new API server with default production
// configuration. Background workers (rate limiter cleanup) do not
// start until Start or the constructor's internal setup runs; no
// listener opens until Start is called, so tests can call Router()
// directly against an httptest server.
func NewServer(dir *directory.Directory) *Server {
	s := &Server{dir: dir}

	s.gate = NewClientGate(DefaultClientGateConfig)
	s.router = NewRouter(RouterConfig{
		Directory: dir,
		Gate:      s.gate,
	})

	return s
}

// Start begins serving HTTP on addr. This is the only method that
// opens a network listener; call it once.
func (s *Server) Start(addr string) error {
	log.Printf("🌐 API server starting on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop performs graceful shutdown of background workers and every
// room the directory owns.
func (s *Server) Stop() {
	if s.gate != nil {
		s.gate.Stop()
	}
	s.dir.Shutdown()
}

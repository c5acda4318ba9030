// Package web provides the HTTP status server for the amp-control daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/amp-control/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	source     status.Source
	cfg        status.Config
	start      time.Time
}

// New creates a Server that reads state from the given source.
func New(addr string, source status.Source, cfg status.Config) *Server {
	s := &Server{
		source: source,
		cfg:    cfg,
		start:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	doc := status.Build(s.source.Snapshot(), nil, s.cfg, s.start, time.Now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, doc)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	doc := status.Build(s.source.Snapshot(), nil, s.cfg, s.start, time.Now())
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatJSON(doc))
}

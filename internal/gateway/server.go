// Package gateway is the bridge's HTTP surface: the generic chat ingress,
// voice session lifecycle callbacks, status for the monitor, and a
// WebSocket status stream.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/bridge-echo/internal/config"
	"github.com/nextlevelbuilder/bridge-echo/internal/dispatch"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
	"github.com/nextlevelbuilder/bridge-echo/internal/voice"
)

// Server handles HTTP and WebSocket connections for the bridge.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	tracker    *tracker.Tracker
	voice      *voice.Registry

	metricsHandler http.Handler

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a bridge HTTP server.
func NewServer(cfg *config.Config, d *dispatch.Dispatcher, tr *tracker.Tracker, reg *voice.Registry) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		tracker:    tr,
		voice:      reg,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The stream feeds local ops tooling; no origin restrictions.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return s
}

// SetMetricsHandler wires the Prometheus handler behind GET /metrics.
// Call before BuildMux or Start; without it the route is absent.
func (s *Server) SetMetricsHandler(h http.Handler) { s.metricsHandler = h }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /session-started", s.handleSessionStarted)
	mux.HandleFunc("POST /call-ended", s.handleCallEnded)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	s.mux = mux
	return mux
}

// Start begins listening and blocks until ctx is cancelled or ListenAndServe
// fails.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := s.cfg.ListenAddr()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("bridge listening", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("bridge server: %w", err)
	}
	return nil
}

// StartTestServer creates a listener on :0 (random port) and returns the
// actual address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}

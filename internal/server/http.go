package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/service"
)

// LifecycleStatus is the read-only lifecycle view served on /api/status
type LifecycleStatus interface {
	State() service.State
	Queued() int
}

// Status is the /api/status payload
type Status struct {
	State     string `json:"state"`
	Queued    int    `json:"queued"`
	BotID     string `json:"bot_id,omitempty"`
	UptimeSec int64  `json:"uptime_seconds"`
}

// HTTPServer serves metrics, health and status
type HTTPServer struct {
	lifecycle LifecycleStatus
	botID     func() string
	gatherer  prometheus.Gatherer
	started   time.Time
	logger    *zap.Logger

	server *http.Server
	port   int
}

// NewHTTPServer creates the server. botID may be nil.
func NewHTTPServer(lifecycle LifecycleStatus, botID func() string, gatherer prometheus.Gatherer, port int, logger *zap.Logger) *HTTPServer {
	s := &HTTPServer{
		lifecycle: lifecycle,
		botID:     botID,
		gatherer:  gatherer,
		started:   time.Now(),
		logger:    logger.Named("http"),
		port:      port,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

// Start listens on localhost and blocks until Stop
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := Status{
		State:     s.lifecycle.State().String(),
		Queued:    s.lifecycle.Queued(),
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if s.botID != nil {
		status.BotID = s.botID()
	}
	s.writeJSON(w, status)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

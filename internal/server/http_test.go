package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/devricklin/feishu-guard-bot/internal/service"
)

type fakeLifecycle struct {
	state  service.State
	queued int
}

func (f *fakeLifecycle) State() service.State { return f.state }
func (f *fakeLifecycle) Queued() int          { return f.queued }

func TestHTTPServer_Status(t *testing.T) {
	s := NewHTTPServer(&fakeLifecycle{state: service.StateBuffering, queued: 3},
		func() string { return "ou_bot" }, prometheus.NewRegistry(), 0, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var status Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if status.State != "buffering" {
		t.Errorf("Expected state buffering, got %s", status.State)
	}
	if status.Queued != 3 {
		t.Errorf("Expected 3 queued, got %d", status.Queued)
	}
	if status.BotID != "ou_bot" {
		t.Errorf("Expected bot ou_bot, got %s", status.BotID)
	}
}

func TestHTTPServer_StatusRejectsPost(t *testing.T) {
	s := NewHTTPServer(&fakeLifecycle{}, nil, prometheus.NewRegistry(), 0, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHTTPServer_Health(t *testing.T) {
	s := NewHTTPServer(&fakeLifecycle{}, nil, prometheus.NewRegistry(), 0, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Unexpected health response: %d %q", w.Code, w.Body.String())
	}
}

func TestHTTPServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	metrics.QueueSuperseded(2)

	s := NewHTTPServer(&fakeLifecycle{}, nil, reg, 0, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "guardbot_queue_superseded_total 2") {
		t.Errorf("Expected superseded counter in metrics output, got:\n%s", w.Body.String())
	}
}

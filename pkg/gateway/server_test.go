package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/metrics"
	"github.com/nomland/nunti/pkg/store"
)

type fixedStats store.Stats

func (f fixedStats) Stats() store.Stats { return store.Stats(f) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, fixedStats{Mappings: 3, Contexts: 2, Watches: 1}, nil)

	if w := get(t, r, "/healthz"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", w.Code, w.Body.String())
	}

	w := get(t, r, "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var got store.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got != (store.Stats{Mappings: 3, Contexts: 2, Watches: 1}) {
		t.Errorf("stats = %+v", got)
	}

	metrics.IdempotentHits.Inc()
	if w := get(t, r, "/metrics"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "nunti_idempotent_hits_total") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestHealthzNotReady(t *testing.T) {
	s := NewServer(config.GatewayConfig{Host: "127.0.0.1", Port: 0}, fixedStats{}, func() bool { return false })
	if w := get(t, s.Handler(), "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d, want 503", w.Code)
	}
}

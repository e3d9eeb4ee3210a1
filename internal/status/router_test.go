package status_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainreminder/trainreminder/internal/provider/resilience"
	"github.com/trainreminder/trainreminder/internal/status"
	"github.com/trainreminder/trainreminder/internal/transit"
)

type stubLoop struct {
	snapshot map[string]interface{}
}

func (s stubLoop) MetricsSnapshot() map[string]interface{} {
	return s.snapshot
}

var fixedNow = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

func newRouter(cfg status.RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	return status.NewRouter(cfg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := newRouter(status.RouterConfig{
		Version:   "1.2.3",
		BuildTime: "2024-05-01T00:00:00Z",
		Logger:    zerolog.Nop(),
	})

	rec := get(t, router, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req_"))

	var body status.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, status.StatusOK, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "2024-05-01T00:00:00Z", body.BuildTime)
	assert.True(t, fixedNow.Equal(body.Time))
}

func TestSystemStatus_NoRegistry(t *testing.T) {
	router := newRouter(status.RouterConfig{
		Logger: zerolog.Nop(),
		Route:  transit.Route{Origin: "900000012102", Destination: "900000100025"},
		Loop: stubLoop{snapshot: map[string]interface{}{
			"polls":        3,
			"last_outcome": "upcoming",
		}},
	})

	rec := get(t, router, "/status")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	route, ok := body["route"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "900000012102", route["origin"])
	assert.Equal(t, "900000100025", route["destination"])

	loop, ok := body["loop"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 3.0, loop["polls"], 0)
	assert.Equal(t, "upcoming", loop["last_outcome"])

	providers, ok := body["providers"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, providers)
}

func TestSystemStatus_ProviderHealthy(t *testing.T) {
	registry := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "vbb", Registry: registry})
	registry.RecordSuccess("vbb")

	router := newRouter(status.RouterConfig{Logger: zerolog.Nop(), Registry: registry})

	rec := get(t, router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string `json:"status"`
		Providers []struct {
			Name          string     `json:"name"`
			Status        string     `json:"status"`
			LastSuccessAt *time.Time `json:"lastSuccessAt"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, status.StatusOK, body.Status)
	require.Len(t, body.Providers, 1)
	assert.Equal(t, "vbb", body.Providers[0].Name)
	assert.Equal(t, "ok", body.Providers[0].Status)
	assert.NotNil(t, body.Providers[0].LastSuccessAt)
}

func TestSystemStatus_OpenCircuitIsDegraded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	registry := resilience.NewRegistry()
	client := resilience.NewClient(resilience.ClientConfig{
		Name:     "vbb",
		Registry: registry,
		CircuitBreaker: &resilience.CircuitBreakerConfig{
			Name:        "vbb",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		},
	})

	req, err := http.NewRequest(http.MethodGet, upstream.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	router := newRouter(status.RouterConfig{Logger: zerolog.Nop(), Registry: registry})

	rec := get(t, router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string `json:"status"`
		Providers []struct {
			Status string `json:"status"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, status.StatusDegraded, body.Status)
	require.Len(t, body.Providers, 1)
	assert.Equal(t, "down", body.Providers[0].Status)
}

func TestRequestID_PreservesCallerID(t *testing.T) {
	router := newRouter(status.RouterConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set("X-Request-Id", "req_from_caller")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req_from_caller", rec.Header().Get("X-Request-Id"))
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	router := newRouter(status.RouterConfig{Logger: logger})
	get(t, router, "/health")

	out := buf.String()
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, `"path":"/health"`)
	assert.Contains(t, out, `"status":200`)
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := status.Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := get(t, handler, "/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "an unexpected error occurred")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestRateLimit(t *testing.T) {
	router := newRouter(status.RouterConfig{Logger: zerolog.Nop(), RateLimit: 2})

	assert.Equal(t, http.StatusOK, get(t, router, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/health").Code)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestUnknownRoute(t *testing.T) {
	router := newRouter(status.RouterConfig{Logger: zerolog.Nop()})
	assert.Equal(t, http.StatusNotFound, get(t, router, "/nope").Code)
}

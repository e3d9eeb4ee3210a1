package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainreminder/trainreminder/internal/provider/resilience"
)

// countingServer answers every request with the current status and counts hits.
func countingServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, client *resilience.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestClient_PassesResponsesThrough(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusBadGateway} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var status, hits atomic.Int32
			status.Store(int32(code))
			server := countingServer(t, &status, &hits)

			client := resilience.NewClient(resilience.DefaultClientConfig("journeys"))

			resp, err := get(t, client, server.URL)

			require.NoError(t, err)
			assert.Equal(t, code, resp.StatusCode)
			assert.Equal(t, int32(1), hits.Load(), "one attempt per call")
		})
	}
}

func TestClient_NetworkErrorReturned(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("journeys"))

	resp, err := get(t, client, url)

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestClient_AttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("journeys")
	cfg.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	_, err := get(t, client, server.URL)
	assert.Error(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("journeys"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestClient_BreakerOpensThenProbesAfterTimeout(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	server := countingServer(t, &status, &hits)

	cfg := resilience.DefaultClientConfig("journeys")
	cfg.CircuitBreaker.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	for i := 0; i < 5; i++ {
		_, err := get(t, client, server.URL)
		require.NoError(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	_, err := get(t, client, server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load(), "open breaker short-circuits")

	status.Store(http.StatusOK)
	time.Sleep(70 * time.Millisecond)

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(6), hits.Load())
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"four failed polls", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"mostly successful", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failed", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"five failed polls", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("journeys")

	assert.Equal(t, "journeys", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.MaxRetries)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, "journeys", cfg.CircuitBreaker.Name)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.CircuitBreaker.Interval)
}

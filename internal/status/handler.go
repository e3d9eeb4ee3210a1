package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trainreminder/trainreminder/internal/provider/resilience"
	"github.com/trainreminder/trainreminder/internal/transit"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// LoopStats exposes the reminder loop's counters.
type LoopStats interface {
	MetricsSnapshot() map[string]interface{}
}

// Health is the body of GET /health.
type Health struct {
	Status    string    `json:"status"`
	Time      time.Time `json:"time"`
	Version   string    `json:"version"`
	BuildTime string    `json:"buildTime"`
}

// ProviderStatus describes one upstream provider.
type ProviderStatus struct {
	*resilience.ProviderHealth
	Status string `json:"status"`
}

// SystemStatus is the body of GET /status.
type SystemStatus struct {
	Status    string                 `json:"status"`
	Time      time.Time              `json:"time"`
	Route     RouteStatus            `json:"route"`
	Loop      map[string]interface{} `json:"loop"`
	Providers []ProviderStatus       `json:"providers"`
}

// RouteStatus describes the monitored route.
type RouteStatus struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the status endpoints.
type Handler struct {
	version   string
	buildTime string
	route     transit.Route
	loop      LoopStats
	registry  *resilience.Registry
	now       func() time.Time
}

// HealthCheck handles GET /health - liveness check.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, Health{
		Status:    StatusOK,
		Time:      h.now(),
		Version:   h.version,
		BuildTime: h.buildTime,
	})
}

// SystemStatus handles GET /status - loop counters and provider health.
// Overall status is degraded when any provider circuit is not closed.
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatus{
		Status: StatusOK,
		Time:   h.now(),
		Route: RouteStatus{
			Origin:      h.route.Origin,
			Destination: h.route.Destination,
		},
		Loop:      map[string]interface{}{},
		Providers: []ProviderStatus{},
	}

	if h.loop != nil {
		resp.Loop = h.loop.MetricsSnapshot()
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			resp.Providers = append(resp.Providers, ProviderStatus{ProviderHealth: ph, Status: ph.Status()})
			if !ph.IsHealthy() {
				resp.Status = StatusDegraded
			}
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
)

// HealthHandler serves the liveness and readiness checks.
type HealthHandler struct {
	checks  []bootstrap.HealthCheck
	version string
	startAt time.Time
}

// NewHealthHandler reports readiness from checks. Liveness only needs the
// process to be up.
func NewHealthHandler(version string, checks ...bootstrap.HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		startAt: time.Now(),
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse lists the state of each backend.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck is the check result of one backend.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness handles GET /healthz. It never checks backends.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every enabled backend answers,
// 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.checks) == 0 {
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	if !healthy {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Detailed handles GET /healthz/detail.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	type DetailedResponse struct {
		Status     string                    `json:"status"`
		Version    string                    `json:"version"`
		Uptime     string                    `json:"uptime"`
		Components map[string]ComponentCheck `json:"components"`
	}

	components, healthy := h.checkAll(ctx)
	resp := DetailedResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     time.Since(h.startAt).Truncate(time.Second).String(),
		Components: components,
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// checkAll runs the checks concurrently.
func (h *HealthHandler) checkAll(ctx context.Context) (map[string]ComponentCheck, bool) {
	results := make(map[string]ComponentCheck, len(h.checks))
	healthy := true
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range h.checks {
		wg.Add(1)
		go func(c bootstrap.HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			cc := ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = "unhealthy"
				cc.Error = err.Error()
			}

			mu.Lock()
			results[c.Name] = cc
			if err != nil {
				healthy = false
			}
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return results, healthy
}

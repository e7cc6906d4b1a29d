package server

import (
	"context"
	"net/http"
	"time"
)

// Latency thresholds that downgrade the upstream check.
const (
	healthDegradedAfter = 2 * time.Second
	healthDownAfter     = 5 * time.Second
	healthCheckTimeout  = healthDownAfter
)

// HealthCheck probes one dependency and reports whether it failed. The
// handler times each check and grades it against the thresholds above.
type HealthCheck func(ctx context.Context) error

type healthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
	CheckedAt time.Time              `json:"checkedAt"`
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// handleHealthLive answers liveness probes without touching dependencies.
func (s *Server) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth runs every registered check. Slow dependencies degrade the
// summary before they fail it outright.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := healthStatus{
		Status:    "ok",
		Checks:    make(map[string]checkResult, len(s.healthChecks)),
		CheckedAt: time.Now().UTC(),
	}
	for name, check := range s.healthChecks {
		result := runCheck(r.Context(), check)
		summary.Checks[name] = result
		summary.Status = worseStatus(summary.Status, result.Status)
	}
	status := http.StatusOK
	if summary.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, summary)
}

func runCheck(ctx context.Context, check HealthCheck) checkResult {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	started := time.Now()
	err := check(ctx)
	elapsed := time.Since(started)

	result := checkResult{Status: "ok", LatencyMS: elapsed.Milliseconds()}
	switch {
	case err != nil:
		result.Status = "down"
		result.Error = err.Error()
	case elapsed >= healthDownAfter:
		result.Status = "down"
	case elapsed >= healthDegradedAfter:
		result.Status = "degraded"
	}
	return result
}

func worseStatus(current, candidate string) string {
	rank := map[string]int{"ok": 0, "degraded": 1, "down": 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}

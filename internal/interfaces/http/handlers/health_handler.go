package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is implemented by every backing store the readiness probe
// inspects.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const readinessTimeout = 2 * time.Second

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler over the named dependency
// checks. Nil checkers are ignored so callers can pass optional stores
// unconditionally.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	filtered := make(map[string]HealthChecker, len(checks))
	for name, check := range checks {
		if check != nil {
			filtered[name] = check
		}
	}
	return &HealthHandler{checks: filtered}
}

// Healthz reports process liveness.
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether every backing dependency is reachable.
// GET /readyz
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "degraded"}[status == http.StatusOK],
		"checks": results,
	})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// Check probes one dependency. A failing critical check turns the whole
// service unhealthy; the others only degrade it.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

type dependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthReport struct {
	Status    string                      `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Services  map[string]dependencyStatus `json:"services"`
}

type HealthHandler struct {
	checks []Check
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Timestamp: time.Now().UTC(), Services: map[string]dependencyStatus{}}
	code := http.StatusOK
	for _, chk := range h.checks {
		if err := chk.Probe(ctx); err != nil {
			report.Services[chk.Name] = dependencyStatus{Status: "disconnected", Message: err.Error()}
			if chk.Critical {
				report.Status = "down"
				code = http.StatusServiceUnavailable
			} else if report.Status == "ok" {
				report.Status = "degraded"
			}
			continue
		}
		report.Services[chk.Name] = dependencyStatus{Status: "connected"}
	}
	c.JSON(code, report)
}

package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Probes reports the state of each external dependency. A nil probe reports the
// dependency as absent.
type Probes struct {
	Broker   func() bool
	Cache    func(ctx context.Context) bool
	Database func(ctx context.Context) error
}

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status   string `json:"status"`
	Broker   bool   `json:"broker"`
	Cache    bool   `json:"cache"`
	Database bool   `json:"database"`
}

// HealthHandler serves dependency health.
type HealthHandler struct {
	probes  Probes
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler whose probes share one timeout.
func NewHealthHandler(probes Probes, timeout time.Duration) *HealthHandler {
	return &HealthHandler{probes: probes, timeout: timeout}
}

// Check runs every probe.
//
// Postcondition: Status is "ok" when all dependencies answer, "degraded" when only the
// optional broker or cache is down, and "unavailable" when the database is down.
func (h *HealthHandler) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	st := HealthStatus{}
	if h.probes.Broker != nil {
		st.Broker = h.probes.Broker()
	}
	if h.probes.Cache != nil {
		st.Cache = h.probes.Cache(ctx)
	}
	if h.probes.Database != nil {
		st.Database = h.probes.Database(ctx) == nil
	}

	switch {
	case !st.Database:
		st.Status = "unavailable"
	case !st.Broker || !st.Cache:
		st.Status = "degraded"
	default:
		st.Status = "ok"
	}
	return st
}

// Handle writes the health status, with 503 only when the database is down.
func (h *HealthHandler) Handle(c *gin.Context) {
	st := h.Check(c.Request.Context())
	code := http.StatusOK
	if !st.Database {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

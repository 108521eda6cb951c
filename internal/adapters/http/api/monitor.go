package api

import (
	"bytes"
	"net/http"

	"github.com/okian/connect-extensions/internal/domain/health"
)

// MonitorHandler serves the content health monitor.
type MonitorHandler struct {
	deps MonitorDependencies
}

// NewMonitorHandler creates a new monitor handler.
func NewMonitorHandler(deps MonitorDependencies) *MonitorHandler {
	return &MonitorHandler{deps: deps}
}

func reportStatus(rep health.Report) int {
	if rep.Failed() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// HandleJSON handles GET /api/health. A failed check answers 503 so
// uptime probes can alert on the status alone.
func (h *MonitorHandler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.HealthReport(r.Context())
	if err != nil {
		fail(w, r, "api.health_report", err)
		return
	}
	writeJSON(w, reportStatus(rep), rep)
}

// HandleHTML handles GET /health.
func (h *MonitorHandler) HandleHTML(w http.ResponseWriter, r *http.Request) {
	const op = "api.health_page"
	rep, err := h.deps.HealthReport(r.Context())
	if err != nil {
		fail(w, r, op, err)
		return
	}
	var buf bytes.Buffer
	if err := health.Render(&buf, rep); err != nil {
		fail(w, r, op, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(reportStatus(rep))
	_, _ = buf.WriteTo(w)
}

package api

import (
	"errors"
	"net/http"

	killqueue "github.com/okian/connect-extensions/internal/adapters/mq/queue"
	service "github.com/okian/connect-extensions/internal/app"
)

// ReaperHandler serves the running job cleanup routes.
type ReaperHandler struct {
	deps ReaperDependencies
}

// NewReaperHandler creates a new reaper handler.
func NewReaperHandler(deps ReaperDependencies) *ReaperHandler {
	return &ReaperHandler{deps: deps}
}

type killRequest struct {
	Jobs []service.KillTarget `json:"jobs"`
}

type killResponse struct {
	Status string `json:"status"`
	service.KillReceipt
}

// HandleJobs handles GET /api/reaper/jobs.
func (h *ReaperHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.deps.RunningJobs(r.Context(), sessionToken(r))
	if err != nil {
		fail(w, r, "api.reaper_jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleKill handles POST /api/reaper/kill. Kills run asynchronously on
// the worker pool.
func (h *ReaperHandler) HandleKill(w http.ResponseWriter, r *http.Request) {
	const op = "api.reaper_kill"
	var req killRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, op, err)
		return
	}
	receipt, err := h.deps.EnqueueKills(r.Context(), sessionToken(r), req.Jobs)
	switch {
	case errors.Is(err, killqueue.ErrFull):
		writeJSON(w, http.StatusTooManyRequests, killResponse{Status: "backpressure", KillReceipt: receipt})
	case err != nil:
		fail(w, r, op, err)
	default:
		writeJSON(w, http.StatusAccepted, killResponse{Status: "accepted", KillReceipt: receipt})
	}
}

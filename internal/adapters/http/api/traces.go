package api

import "net/http"

// TraceHandler serves the job trace viewer.
type TraceHandler struct {
	deps TraceDependencies
}

// NewTraceHandler creates a new trace handler.
func NewTraceHandler(deps TraceDependencies) *TraceHandler {
	return &TraceHandler{deps: deps}
}

// HandleContent handles GET /api/traces/content.
func (h *TraceHandler) HandleContent(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.TraceContent(r.Context(), sessionToken(r))
	if err != nil {
		fail(w, r, "api.trace_content", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleJobs handles GET /api/traces/content/{guid}/jobs.
func (h *TraceHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.deps.TraceJobs(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.trace_jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleRaw handles GET /api/traces/content/{guid}/jobs/{key}.
func (h *TraceHandler) HandleRaw(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.JobTraces(r.Context(), sessionToken(r), r.PathValue("guid"), r.PathValue("key"))
	if err != nil {
		fail(w, r, "api.trace_raw", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// HandleGrouped handles GET /api/traces/content/{guid}/jobs/{key}/grouped.
func (h *TraceHandler) HandleGrouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.deps.GroupedTraces(r.Context(), sessionToken(r), r.PathValue("guid"), r.PathValue("key"))
	if err != nil {
		fail(w, r, "api.trace_grouped", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

package api

import (
	"net/http"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

// PublisherHandler serves the publisher command center and content manager.
type PublisherHandler struct {
	deps PublisherDependencies
}

// NewPublisherHandler creates a new publisher handler.
func NewPublisherHandler(deps PublisherDependencies) *PublisherHandler {
	return &PublisherHandler{deps: deps}
}

// HandleList handles GET /api/contents.
func (h *PublisherHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Contents(r.Context(), sessionToken(r))
	if err != nil {
		fail(w, r, "api.contents", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGet handles GET /api/contents/{guid}.
func (h *PublisherHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.deps.Content(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleUpdate handles PATCH /api/contents/{guid}.
func (h *PublisherHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.content_update"
	var patch connect.ContentPatch
	if err := decodeJSON(w, r, op, &patch); err != nil {
		fail(w, r, op, err)
		return
	}
	if patch.Title == nil && patch.Locked == nil && patch.LockedMessage == nil {
		fail(w, r, op, NewKind(op, ErrBadRequest))
		return
	}
	item, err := h.deps.UpdateContent(r.Context(), sessionToken(r), r.PathValue("guid"), patch)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleProcesses handles GET /api/contents/{guid}/processes.
func (h *PublisherHandler) HandleProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := h.deps.ContentProcesses(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content_processes", err)
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

// HandleKill handles DELETE /api/contents/{guid}/processes/{key}. It
// returns once the job has stopped.
func (h *PublisherHandler) HandleKill(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.KillJob(r.Context(), sessionToken(r), r.PathValue("guid"), r.PathValue("key")); err != nil {
		fail(w, r, "api.content_kill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuthor handles GET /api/contents/{guid}/author.
func (h *PublisherHandler) HandleAuthor(w http.ResponseWriter, r *http.Request) {
	user, err := h.deps.ContentAuthor(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content_author", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleReleases handles GET /api/contents/{guid}/releases.
func (h *PublisherHandler) HandleReleases(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.deps.ContentReleases(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content_releases", err)
		return
	}
	writeJSON(w, http.StatusOK, bundles)
}

// HandleVisits handles GET /api/contents/{guid}/metrics.
func (h *PublisherHandler) HandleVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := h.deps.ContentVisits(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content_metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, visits)
}

// HandleSummary handles GET /api/contents/{guid}/summary.
func (h *PublisherHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.ContentSummary(r.Context(), sessionToken(r), r.PathValue("guid"))
	if err != nil {
		fail(w, r, "api.content_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

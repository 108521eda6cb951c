package api

import (
	"net/http"
	"strconv"

	"github.com/okian/connect-extensions/internal/adapters/repository"
	"github.com/okian/connect-extensions/internal/domain/dag"
)

// DAGHandler serves the DAG builder API.
type DAGHandler struct {
	deps DAGDependencies
}

// NewDAGHandler creates a new DAG handler.
func NewDAGHandler(deps DAGDependencies) *DAGHandler {
	return &DAGHandler{deps: deps}
}

type dagSaved struct {
	Message  string             `json:"message"`
	DAGID    string             `json:"dag_id"`
	Metadata repository.Summary `json:"metadata"`
}

type dagList struct {
	DAGs []repository.Summary `json:"dags"`
}

type dagDetail struct {
	DAG repository.Artifact `json:"dag"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func summaryOf(a repository.Artifact) repository.Summary {
	return repository.Summary{ID: a.ID, Title: a.Title, Timestamp: a.Timestamp, ArtifactSize: a.ArtifactSize}
}

// user resolves the caller, writing a 401 when neither an API key nor a
// session token identifies them.
func (h *DAGHandler) user(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	c := caller(r)
	if c.APIKey == "" && c.SessionToken == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized",
			WrapKind(op, ErrUnauthorized, errMissingAuth))
		return "", false
	}
	guid, err := h.deps.DAGUser(r.Context(), c)
	if err != nil {
		fail(w, r, op, err)
		return "", false
	}
	return guid, true
}

// HandleCreate handles POST /api/dags.
func (h *DAGHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "api.dag_create", "", http.StatusCreated, "DAG created successfully")
}

// HandleUpdate handles PUT /api/dags/{id}.
func (h *DAGHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "api.dag_update", r.PathValue("id"), http.StatusOK, "DAG updated successfully")
}

func (h *DAGHandler) save(w http.ResponseWriter, r *http.Request, op, id string, status int, msg string) {
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	var in dag.Input
	if err := decodeJSON(w, r, op, &in); err != nil {
		fail(w, r, op, err)
		return
	}
	a, err := h.deps.SaveDAG(r.Context(), user, id, in)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, status, dagSaved{Message: msg, DAGID: a.ID, Metadata: summaryOf(a)})
}

// HandleList handles GET /api/dags.
func (h *DAGHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_list"
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	items, err := h.deps.ListDAGs(r.Context(), user)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if items == nil {
		items = []repository.Summary{}
	}
	writeJSON(w, http.StatusOK, dagList{DAGs: items})
}

// HandleGet handles GET /api/dags/{id}.
func (h *DAGHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_get"
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	a, err := h.deps.GetDAG(r.Context(), user, r.PathValue("id"))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, dagDetail{DAG: a})
}

// HandleDelete handles DELETE /api/dags/{id}.
func (h *DAGHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_delete"
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	if err := h.deps.DeleteDAG(r.Context(), user, r.PathValue("id")); err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "DAG deleted successfully"})
}

// HandleClone handles POST /api/dags/{id}/clone.
func (h *DAGHandler) HandleClone(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_clone"
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	a, err := h.deps.CloneDAG(r.Context(), user, r.PathValue("id"))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, dagSaved{Message: "DAG cloned successfully", DAGID: a.ID, Metadata: summaryOf(a)})
}

// HandlePublish handles POST /api/dags/{id}/publish and waits for the
// deployment to finish.
func (h *DAGHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_publish"
	c := caller(r)
	if c.APIKey == "" && c.SessionToken == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", WrapKind(op, ErrUnauthorized, errMissingAuth))
		return
	}
	pub, err := h.deps.PublishDAG(r.Context(), c, r.PathValue("id"))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// HandleDownload handles GET /api/dags/{id}/download.
func (h *DAGHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_download"
	user, ok := h.user(w, r, op)
	if !ok {
		return
	}
	dl, err := h.deps.DownloadDAG(r.Context(), user, r.PathValue("id"))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}

// HandleValidate handles POST /api/dags/validate. Nothing is saved.
func (h *DAGHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_validate"
	var in dag.Input
	if err := decodeJSON(w, r, op, &in); err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ValidateDAG(r.Context(), in))
}

// HandleSearch handles GET /api/dags/search?q=.
func (h *DAGHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.dag_search"
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusOK, []dag.SearchHit{})
		return
	}
	hits, err := h.deps.SearchContent(r.Context(), caller(r), q)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

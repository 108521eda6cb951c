package api

import (
	"errors"
	"net/http"
)

// OAuthHandler serves the OAuth session manager and token debugger.
type OAuthHandler struct {
	deps OAuthDependencies
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(deps OAuthDependencies) *OAuthHandler {
	return &OAuthHandler{deps: deps}
}

type deleteSessionsRequest struct {
	GUIDs []string `json:"guids"`
}

// HandleSessions handles GET /api/oauth/sessions.
func (h *OAuthHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	overview, err := h.deps.OAuthOverview(r.Context())
	if err != nil {
		fail(w, r, "api.oauth_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleDelete handles DELETE /api/oauth/sessions.
func (h *OAuthHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.oauth_sessions_delete"
	var req deleteSessionsRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		fail(w, r, op, err)
		return
	}
	if len(req.GUIDs) == 0 {
		fail(w, r, op, WrapKind(op, ErrBadRequest, errors.New("guids must not be empty")))
		return
	}
	out, err := h.deps.DeleteOAuthSessions(r.Context(), req.GUIDs)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTokens handles GET /api/oauth/tokens.
func (h *OAuthHandler) HandleTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.OAuthTokens(r.Context(), sessionToken(r)))
}

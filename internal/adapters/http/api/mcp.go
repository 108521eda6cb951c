package api

import "net/http"

// MCPHandler exposes the MCP server.
type MCPHandler struct {
	deps MCPDependencies
}

// NewMCPHandler creates a new MCP handler.
func NewMCPHandler(deps MCPDependencies) *MCPHandler {
	return &MCPHandler{deps: deps}
}

// HandleMCP handles /mcp with the streamable HTTP transport.
func (h *MCPHandler) HandleMCP(w http.ResponseWriter, r *http.Request) {
	h.deps.MCPHandler().ServeHTTP(w, r)
}

// HandleTools handles GET /api/mcp/tools.
func (h *MCPHandler) HandleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.MCPTools())
}

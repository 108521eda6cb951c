// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/mcpserver"
	"github.com/okian/connect-extensions/internal/adapters/repository"
	service "github.com/okian/connect-extensions/internal/app"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/dag"
	"github.com/okian/connect-extensions/internal/domain/health"
	"github.com/okian/connect-extensions/internal/domain/oauthview"
	"github.com/okian/connect-extensions/internal/domain/publisher"
	"github.com/okian/connect-extensions/internal/domain/traces"
	"github.com/okian/connect-extensions/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// PublisherDependencies backs the content manager routes.
type PublisherDependencies interface {
	Contents(ctx context.Context, sessionToken string) ([]publisher.ContentWithProcesses, error)
	Content(ctx context.Context, sessionToken, guid string) (connect.Content, error)
	UpdateContent(ctx context.Context, sessionToken, guid string, patch connect.ContentPatch) (connect.Content, error)
	ContentProcesses(ctx context.Context, sessionToken, guid string) ([]connect.Process, error)
	KillJob(ctx context.Context, sessionToken, guid, key string) error
	ContentAuthor(ctx context.Context, sessionToken, guid string) (connect.User, error)
	ContentReleases(ctx context.Context, sessionToken, guid string) ([]connect.Bundle, error)
	ContentVisits(ctx context.Context, sessionToken, guid string) ([]connect.Visit, error)
	ContentSummary(ctx context.Context, sessionToken, guid string) (publisher.Summary, error)
}

// ReaperDependencies backs the running job cleanup routes.
type ReaperDependencies interface {
	RunningJobs(ctx context.Context, sessionToken string) ([]service.RunningJob, error)
	EnqueueKills(ctx context.Context, sessionToken string, targets []service.KillTarget) (service.KillReceipt, error)
}

// DAGDependencies backs the DAG builder routes.
type DAGDependencies interface {
	DAGUser(ctx context.Context, c service.Caller) (string, error)
	ValidateDAG(ctx context.Context, in dag.Input) service.DAGCheck
	SaveDAG(ctx context.Context, user, id string, in dag.Input) (repository.Artifact, error)
	ListDAGs(ctx context.Context, user string) ([]repository.Summary, error)
	GetDAG(ctx context.Context, user, id string) (repository.Artifact, error)
	DeleteDAG(ctx context.Context, user, id string) error
	CloneDAG(ctx context.Context, user, id string) (repository.Artifact, error)
	DownloadDAG(ctx context.Context, user, id string) (service.Download, error)
	PublishDAG(ctx context.Context, c service.Caller, id string) (service.Publication, error)
	SearchContent(ctx context.Context, c service.Caller, query string) ([]dag.SearchHit, error)
}

// MonitorDependencies backs the content health monitor routes.
type MonitorDependencies interface {
	HealthReport(ctx context.Context) (health.Report, error)
}

// ChatDependencies backs the chat routes.
type ChatDependencies interface {
	ChatEnabled() bool
	ChatModel() string
	Chat(ctx context.Context, sessionID, input string, emit func(string) error) (string, error)
	ChatHistory(sessionID string) []chat.Rendered
	ResetChat(sessionID string)
}

// TraceDependencies backs the trace viewer routes.
type TraceDependencies interface {
	TraceContent(ctx context.Context, sessionToken string) ([]traces.ContentItem, error)
	TraceJobs(ctx context.Context, sessionToken, guid string) ([]connect.Job, error)
	JobTraces(ctx context.Context, sessionToken, guid, key string) ([]connect.TraceDocument, error)
	GroupedTraces(ctx context.Context, sessionToken, guid, key string) ([]traces.Trace, error)
}

// OAuthDependencies backs the OAuth session manager and token debug routes.
type OAuthDependencies interface {
	OAuthOverview(ctx context.Context) (oauthview.Overview, error)
	DeleteOAuthSessions(ctx context.Context, guids []string) (service.SessionDeletion, error)
	OAuthTokens(ctx context.Context, sessionToken string) oauthview.TokenPair
}

// MCPDependencies backs the MCP endpoint.
type MCPDependencies interface {
	MCPHandler() http.Handler
	MCPTools() []mcpserver.ToolInfo
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PublisherDependencies
	ReaperDependencies
	DAGDependencies
	MonitorDependencies
	ChatDependencies
	TraceDependencies
	OAuthDependencies
	MCPDependencies
	StatsProvider
}

// Server wires HTTP routes for every extension.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	publisherHandler *PublisherHandler
	reaperHandler    *ReaperHandler
	dagHandler       *DAGHandler
	monitorHandler   *MonitorHandler
	chatHandler      *ChatHandler
	traceHandler     *TraceHandler
	oauthHandler     *OAuthHandler
	mcpHandler       *MCPHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		publisherHandler: NewPublisherHandler(deps),
		reaperHandler:    NewReaperHandler(deps),
		dagHandler:       NewDAGHandler(deps),
		monitorHandler:   NewMonitorHandler(deps),
		chatHandler:      NewChatHandler(deps),
		traceHandler:     NewTraceHandler(deps),
		oauthHandler:     NewOAuthHandler(deps),
		mcpHandler:       NewMCPHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, Instrument(endpoint, h))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.Metrics())
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	p := s.publisherHandler
	route("GET /api/contents", "contents", p.HandleList)
	route("GET /api/contents/{guid}", "content", p.HandleGet)
	route("PATCH /api/contents/{guid}", "content_update", p.HandleUpdate)
	route("GET /api/contents/{guid}/processes", "content_processes", p.HandleProcesses)
	route("DELETE /api/contents/{guid}/processes/{key}", "content_kill", p.HandleKill)
	route("GET /api/contents/{guid}/author", "content_author", p.HandleAuthor)
	route("GET /api/contents/{guid}/releases", "content_releases", p.HandleReleases)
	route("GET /api/contents/{guid}/metrics", "content_metrics", p.HandleVisits)
	route("GET /api/contents/{guid}/summary", "content_summary", p.HandleSummary)

	route("GET /api/reaper/jobs", "reaper_jobs", s.reaperHandler.HandleJobs)
	route("POST /api/reaper/kill", "reaper_kill", s.reaperHandler.HandleKill)

	d := s.dagHandler
	route("POST /api/dags", "dag_create", d.HandleCreate)
	route("GET /api/dags", "dag_list", d.HandleList)
	route("POST /api/dags/validate", "dag_validate", d.HandleValidate)
	route("GET /api/dags/search", "dag_search", d.HandleSearch)
	route("GET /api/dags/{id}", "dag_get", d.HandleGet)
	route("PUT /api/dags/{id}", "dag_update", d.HandleUpdate)
	route("DELETE /api/dags/{id}", "dag_delete", d.HandleDelete)
	route("POST /api/dags/{id}/clone", "dag_clone", d.HandleClone)
	route("POST /api/dags/{id}/publish", "dag_publish", d.HandlePublish)
	route("GET /api/dags/{id}/download", "dag_download", d.HandleDownload)

	route("GET /api/health", "health_report", s.monitorHandler.HandleJSON)
	route("GET /health", "health_page", s.monitorHandler.HandleHTML)

	c := s.chatHandler
	route("POST /api/chat", "chat", c.HandleSend)
	route("GET /api/chat/history", "chat_history", c.HandleHistory)
	route("DELETE /api/chat", "chat_reset", c.HandleReset)
	route("GET /api/chat/config", "chat_config", c.HandleConfig)

	t := s.traceHandler
	route("GET /api/traces/content", "trace_content", t.HandleContent)
	route("GET /api/traces/content/{guid}/jobs", "trace_jobs", t.HandleJobs)
	route("GET /api/traces/content/{guid}/jobs/{key}", "trace_raw", t.HandleRaw)
	route("GET /api/traces/content/{guid}/jobs/{key}/grouped", "trace_grouped", t.HandleGrouped)

	o := s.oauthHandler
	route("GET /api/oauth/sessions", "oauth_sessions", o.HandleSessions)
	route("DELETE /api/oauth/sessions", "oauth_sessions_delete", o.HandleDelete)
	route("GET /api/oauth/tokens", "oauth_tokens", o.HandleTokens)

	route("/mcp", "mcp", s.mcpHandler.HandleMCP)
	route("GET /api/mcp/tools", "mcp_tools", s.mcpHandler.HandleTools)
}

type errorResponse struct {
	Code             string   `json:"code"`
	Message          string   `json:"message"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	TaskID           string   `json:"task_id,omitempty"`
	Output           []string `json:"output,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.ValidationErrors = verr.Errors
	}
	var derr *service.DeployError
	if errors.As(err, &derr) {
		resp.TaskID = derr.TaskID
		resp.Output = derr.Output
	}
	writeJSON(w, status, resp)
}

// fail classifies err, logs server-side failures and writes the response.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, code, WrapKind(op, kindOf(err), err))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// sessionToken returns the visitor session token the platform proxy adds.
func sessionToken(r *http.Request) string {
	return r.Header.Get(connect.SessionTokenHeader)
}

// caller returns who the request acts as: "Authorization: Key <key>" first,
// then the visitor session token.
func caller(r *http.Request) service.Caller {
	c := service.Caller{SessionToken: sessionToken(r)}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, key, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Key") {
		c.APIKey = strings.TrimSpace(key)
	}
	return c
}

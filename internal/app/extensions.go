package service

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/mcpserver"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/health"
	"github.com/okian/connect-extensions/internal/domain/oauthview"
	"github.com/okian/connect-extensions/internal/domain/traces"
	"github.com/okian/connect-extensions/pkg/logger"
)

// HealthReport runs the health monitor against the configured content.
func (s *Service) HealthReport(ctx context.Context) (health.Report, error) {
	if s.checker == nil {
		return health.Report{}, ErrNoPlatform
	}
	return s.checker.Report(ctx, s.monitoredContent, s.now()), nil
}

// ChatEnabled reports whether LLM credentials are configured.
func (s *Service) ChatEnabled() bool { return s.chat.Enabled() }

// ChatModel returns the model chat replies come from.
func (s *Service) ChatModel() string { return s.chat.Model() }

// Chat answers input in the given session, streaming text through emit.
func (s *Service) Chat(ctx context.Context, sessionID, input string, emit func(string) error) (string, error) {
	return s.chat.Send(ctx, sessionID, input, emit)
}

// ChatHistory returns a session's rendered transcript.
func (s *Service) ChatHistory(sessionID string) []chat.Rendered {
	return s.chat.History(sessionID)
}

// ResetChat forgets a session.
func (s *Service) ResetChat(sessionID string) {
	s.chat.Reset(sessionID)
}

// TraceContent lists the content visible to the visitor.
func (s *Service) TraceContent(ctx context.Context, sessionToken string) ([]traces.ContentItem, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	items, err := c.ListContent(ctx, "")
	if err != nil {
		return nil, err
	}
	return traces.ListItems(items), nil
}

// TraceJobs lists the jobs of one content item.
func (s *Service) TraceJobs(ctx context.Context, sessionToken, guid string) ([]connect.Job, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	jobs, err := c.ListJobs(ctx, guid)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []connect.Job{}
	}
	return jobs, nil
}

// JobTraces returns the raw trace documents a job wrote.
func (s *Service) JobTraces(ctx context.Context, sessionToken, guid, key string) ([]connect.TraceDocument, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	return c.JobTraces(ctx, guid, key)
}

// GroupedTraces returns a job's trace documents grouped by trace id.
func (s *Service) GroupedTraces(ctx context.Context, sessionToken, guid, key string) ([]traces.Trace, error) {
	docs, err := s.JobTraces(ctx, sessionToken, guid, key)
	if err != nil {
		return nil, err
	}
	return traces.GroupByTraceID(docs), nil
}

// OAuthOverview joins every OAuth session with its user and integration.
func (s *Service) OAuthOverview(ctx context.Context) (oauthview.Overview, error) {
	if s.platform == nil {
		return oauthview.Overview{}, ErrNoPlatform
	}
	var (
		sessions     []connect.OAuthSession
		users        []connect.User
		integrations []connect.OAuthIntegration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sessions, err = s.platform.ListOAuthSessions(gctx)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.platform.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		integrations, err = s.platform.ListOAuthIntegrations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return oauthview.Overview{}, err
	}
	return oauthview.Summarize(oauthview.Join(sessions, users, integrations)), nil
}

// SessionDeletion reports the outcome of a bulk session delete.
type SessionDeletion struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// DeleteOAuthSessions deletes each session, continuing past failures.
func (s *Service) DeleteOAuthSessions(ctx context.Context, guids []string) (SessionDeletion, error) {
	if s.platform == nil {
		return SessionDeletion{}, ErrNoPlatform
	}
	out := SessionDeletion{Deleted: []string{}}
	for _, guid := range guids {
		if err := s.platform.DeleteOAuthSession(ctx, guid); err != nil {
			if out.Failed == nil {
				out.Failed = map[string]string{}
			}
			out.Failed[guid] = err.Error()
			s.logger.Warn(ctx, "OAuth session delete failed", logger.String("guid", guid), logger.Error(err))
			continue
		}
		out.Deleted = append(out.Deleted, guid)
	}
	return out, nil
}

// OAuthTokens exchanges the visitor's session token for integration
// credentials and decodes both. A failed exchange leaves the access token
// empty.
func (s *Service) OAuthTokens(ctx context.Context, sessionToken string) oauthview.TokenPair {
	if sessionToken == "" || s.platform == nil {
		return oauthview.Inspect(sessionToken, "")
	}
	creds, err := s.platform.OAuthCredentials(ctx, sessionToken)
	if err != nil {
		s.logger.Warn(ctx, "OAuth credential exchange failed", logger.Error(err))
		return oauthview.Inspect(sessionToken, "")
	}
	return oauthview.Inspect(sessionToken, creds.AccessToken)
}

// MCPHandler serves the MCP streamable HTTP endpoint.
func (s *Service) MCPHandler() http.Handler { return s.mcpHTTP }

// MCPTools lists the registered MCP tools.
func (s *Service) MCPTools() []mcpserver.ToolInfo { return s.mcp.Tools() }

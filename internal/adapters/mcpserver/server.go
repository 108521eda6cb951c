// Package mcpserver exposes dataset and platform identity tools over the Model
// Context Protocol's streamable HTTP transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

// Server metadata reported to clients.
const (
	ServerName    = "Simple MCP Server"
	ServerVersion = "1.0.0"
)

// Tool names.
const (
	ToolListDatasets = "list_known_datasets"
	ToolSummary      = "calculate_summary_statistics"
	ToolWhoAmI       = "connect_whoami"
)

// Tool errors shown to clients.
var (
	ErrNoSessionToken = errors.New("session token not available: this tool must be called from content running on Posit Connect")
	ErrNoIntegration  = errors.New("no Visitor API Key integration configured: please add a Connect integration in the content settings")
)

// WhoAmI resolves the platform user behind a visitor session token.
type WhoAmI func(ctx context.Context, sessionToken string) (connect.User, error)

// ToolInfo describes a registered tool for index pages.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Server builds MCP servers bound to one HTTP request's visitor.
type Server struct {
	datasets map[string]*Dataset
	whoami   WhoAmI
	log      logger.Logger
}

// NewServer loads the embedded datasets.
func NewServer(whoami WhoAmI) (*Server, error) {
	ds, err := LoadDatasets()
	if err != nil {
		return nil, fmt.Errorf("load datasets: %w", err)
	}
	return &Server{datasets: ds, whoami: whoami, log: logger.Named("mcp")}, nil
}

// Handler serves the streamable HTTP transport without sessions. Each
// request gets a server carrying that request's session token.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.ForToken(r.Header.Get(connect.SessionTokenHeader))
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

// Tools lists the registered tools.
func (s *Server) Tools() []ToolInfo {
	return []ToolInfo{
		{Name: ToolListDatasets, Description: "Lists available dataset names."},
		{Name: ToolSummary, Description: "Calculates summary statistics for a specified dataset."},
		{Name: ToolWhoAmI, Description: "Returns the Posit Connect user behind the visitor's session token. Requires a Visitor API Key integration."},
	}
}

// DatasetNames returns the known dataset names, sorted.
func (s *Server) DatasetNames() []string {
	names := make([]string, 0, len(s.datasets))
	for n := range s.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type (
	listInput  struct{}
	listOutput struct {
		Datasets []string `json:"datasets"`
	}
	summaryInput struct {
		DatasetName string `json:"dataset_name" jsonschema:"name of a dataset returned by list_known_datasets"`
	}
	summaryOutput struct {
		Dataset string        `json:"dataset"`
		Rows    int           `json:"rows"`
		Columns []ColumnStats `json:"columns"`
	}
	whoamiInput  struct{}
	whoamiOutput struct {
		GUID      string `json:"guid"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		UserRole  string `json:"user_role"`
	}
)

// ForToken returns a server whose identity tool acts for sessionToken.
func (s *Server) ForToken(sessionToken string) *mcp.Server {
	info := s.Tools()
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{Name: info[0].Name, Description: info[0].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ listInput) (*mcp.CallToolResult, listOutput, error) {
			metrics.RecordMCPToolCall(ToolListDatasets, "ok")
			return nil, listOutput{Datasets: s.DatasetNames()}, nil
		})

	mcp.AddTool(server, &mcp.Tool{Name: info[1].Name, Description: info[1].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in summaryInput) (*mcp.CallToolResult, summaryOutput, error) {
			ds, ok := s.datasets[in.DatasetName]
			if !ok {
				metrics.RecordMCPToolCall(ToolSummary, "not_found")
				return nil, summaryOutput{}, fmt.Errorf("dataset '%s' not found", in.DatasetName)
			}
			metrics.RecordMCPToolCall(ToolSummary, "ok")
			return nil, summaryOutput{Dataset: ds.Name, Rows: len(ds.Rows), Columns: ds.Describe()}, nil
		})

	mcp.AddTool(server, &mcp.Tool{Name: info[2].Name, Description: info[2].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ whoamiInput) (*mcp.CallToolResult, whoamiOutput, error) {
			user, err := s.resolve(ctx, sessionToken)
			if err != nil {
				metrics.RecordMCPToolCall(ToolWhoAmI, "error")
				return nil, whoamiOutput{}, err
			}
			metrics.RecordMCPToolCall(ToolWhoAmI, "ok")
			return nil, whoamiOutput{
				GUID:      user.GUID,
				Username:  user.Username,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Email:     user.Email,
				UserRole:  user.UserRole,
			}, nil
		})

	return server
}

func (s *Server) resolve(ctx context.Context, sessionToken string) (connect.User, error) {
	if sessionToken == "" {
		return connect.User{}, ErrNoSessionToken
	}
	user, err := s.whoami(ctx, sessionToken)
	switch {
	case err == nil:
		return user, nil
	case connect.IsCode(err, connect.CodeNoVisitorIntegration):
		return connect.User{}, ErrNoIntegration
	default:
		s.log.Warn(ctx, "whoami failed", logger.Error(err))
		return connect.User{}, fmt.Errorf("error calling Connect API: %w", err)
	}
}

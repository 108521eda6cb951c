package health

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// DocsURL documents how to set content environment variables.
const DocsURL = "https://docs.posit.co/connect/user/content-settings/#content-vars"

//go:embed templates/report.html.tmpl
var reportSource string

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"timestamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
	"docsURL":   func() string { return DocsURL },
}).Parse(reportSource))

// ErrorDetail describes why no check could be made.
type ErrorDetail struct {
	GUID    string `json:"guid,omitempty"`
	Message string `json:"message"`
}

// Report is everything one run of the monitor produced.
type Report struct {
	Result      *Result      `json:"result,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
	CurrentUser string       `json:"current_user"`
	CheckedAt   time.Time    `json:"checked_at"`
	// NeedsSetup is set when no content to monitor was configured.
	NeedsSetup bool `json:"needs_setup"`
	Notify     bool `json:"notify"`
}

// Failed reports whether the run should be treated as unhealthy.
func (r Report) Failed() bool {
	return r.Error != nil || (r.Result != nil && r.Result.Failed())
}

// Report runs the full monitor for input, which may be a GUID, a URL
// containing one, or empty.
func (c *Checker) Report(ctx context.Context, input string, now time.Time) Report {
	rep := Report{CheckedAt: now, CurrentUser: "Unknown"}
	defer func() {
		rep.Notify = ShouldNotify(rep.Error != nil, rep.Result)
	}()

	if strings.TrimSpace(input) == "" {
		rep.NeedsSetup = true
		return rep
	}
	guid, err := ExtractGUID(input)
	if err != nil {
		rep.Error = &ErrorDetail{GUID: strings.TrimSpace(input), Message: err.Error()}
		return rep
	}
	if err := c.ServerReachable(ctx); err != nil {
		rep.Error = &ErrorDetail{GUID: guid, Message: err.Error()}
		return rep
	}
	rep.CurrentUser = c.CurrentUserName(ctx)

	result := c.Check(ctx, guid)
	rep.Result = &result
	if msg, ok := result.RetrievalError(); ok {
		rep.Error = &ErrorDetail{GUID: guid, Message: msg}
	}
	return rep
}

// Render writes rep as a standalone HTML page.
func Render(w io.Writer, rep Report) error {
	if err := reportTemplate.Execute(w, rep); err != nil {
		return fmt.Errorf("render health report: %w", err)
	}
	return nil
}

// Package healthcheck runs the content health monitor once from the
// command line, for cron jobs and uptime probes that cannot reach the host.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/config"
	"github.com/okian/connect-extensions/internal/domain/health"
)

// Exit codes.
const (
	ExitPass  = 0
	ExitFail  = 1
	ExitUsage = 2
)

// Output formats.
const (
	FormatJSON = "json"
	FormatHTML = "html"
	FormatText = "text"
)

const defaultTimeoutSeconds = 60

// ErrUsage marks invalid command line input.
var ErrUsage = errors.New("invalid usage")

// Config holds one run's settings.
type Config struct {
	Server  string
	APIKey  string
	Content string
	Format  string
	Timeout time.Duration
}

// ParseArgs reads flags, defaulting each to the variables the platform
// injects into content processes.
func ParseArgs(args []string, stderr io.Writer) (Config, error) {
	fs := pflag.NewFlagSet("health-check", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfg Config
	var timeoutSeconds float64
	fs.StringVar(&cfg.Server, "server", config.StringEnv("CONNECT_SERVER", ""), "platform root URL")
	fs.StringVar(&cfg.APIKey, "api-key", config.StringEnv("CONNECT_API_KEY", ""), "API key of the checking identity")
	fs.StringVarP(&cfg.Content, "content", "c", config.StringEnv("MONITORED_CONTENT_GUID", ""), "GUID or URL of the content to check")
	fs.StringVarP(&cfg.Format, "format", "f", FormatText, "output format: text, json or html")
	fs.Float64Var(&timeoutSeconds, "timeout", config.FloatEnv("HEALTH_TIMEOUT_S", defaultTimeoutSeconds), "probe timeout in seconds")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Timeout = time.Duration(timeoutSeconds * float64(time.Second))

	switch {
	case cfg.Server == "":
		return Config{}, fmt.Errorf("%w: --server or CONNECT_SERVER is required", ErrUsage)
	case cfg.Format != FormatText && cfg.Format != FormatJSON && cfg.Format != FormatHTML:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrUsage, cfg.Format)
	case cfg.Timeout <= 0:
		return Config{}, fmt.Errorf("%w: timeout must be positive", ErrUsage)
	}
	return cfg, nil
}

// Run checks the content once, writes the report and returns the exit code.
func Run(ctx context.Context, cfg Config, out io.Writer, now time.Time) (int, error) {
	platform, err := connect.New(cfg.Server, cfg.APIKey, connect.WithTimeout(cfg.Timeout))
	if err != nil {
		return ExitUsage, err
	}
	rep := health.NewChecker(platform, health.WithTimeout(cfg.Timeout)).Report(ctx, cfg.Content, now)

	if err := Write(out, cfg.Format, rep); err != nil {
		return ExitFail, err
	}
	if rep.Failed() || rep.NeedsSetup {
		return ExitFail, nil
	}
	return ExitPass, nil
}

// Write renders rep in format.
func Write(w io.Writer, format string, rep health.Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatHTML:
		return health.Render(w, rep)
	}
	var err error
	switch {
	case rep.NeedsSetup:
		_, err = fmt.Fprintln(w, "SETUP: no content to monitor; pass --content or set MONITORED_CONTENT_GUID")
	case rep.Error != nil:
		_, err = fmt.Fprintf(w, "ERROR: %s\n", rep.Error.Message)
	case rep.Result != nil:
		_, err = fmt.Fprintf(w, "%s %s (%s) http=%s checked_by=%q\n",
			rep.Result.Status, rep.Result.Name, rep.Result.GUID, rep.Result.HTTPCode, rep.CurrentUser)
	}
	return err
}

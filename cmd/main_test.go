package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	app "github.com/okian/connect-extensions/internal/app"
	"github.com/okian/connect-extensions/internal/config"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func clearPlatformEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONNECT_SERVER", "CONNECT_API_KEY", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "EXT_USE_BEDROCK", "EXT_CONFIG"} {
		t.Setenv(k, "")
	}
}

// awsEnv points the AWS credential chain at static test credentials.
func awsEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
}

func backend(s chat.Streamer) string {
	a, ok := s.(*chat.AnthropicStreamer)
	if !ok {
		return ""
	}
	return a.Backend()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		clearPlatformEnv(t)

		convey.Convey("When loading configuration from the environment", func() {
			t.Setenv("EXT_ADDR", ":8181")
			t.Setenv("EXT_KILL_WORKER_COUNT", "2")

			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
			convey.So(cfg.KillWorkerCount, convey.ShouldEqual, 2)
		})

		convey.Convey("When no platform is configured", func() {
			cfg := config.New()
			platform, err := newPlatform(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(platform, convey.ShouldBeNil)
			streamer, err := newStreamer(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(streamer, convey.ShouldBeNil)
		})

		convey.Convey("When a platform and chat key are configured", func() {
			cfg := config.New()
			cfg.ConnectServer = "https://connect.example.com"
			cfg.ConnectAPIKey = "k"
			cfg.AnthropicAPIKey = "sk-test"

			platform, err := newPlatform(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(platform.Server(), convey.ShouldEqual, "https://connect.example.com")
			convey.So(platform.HTTPClient().Timeout, convey.ShouldEqual, cfg.HTTPTimeout())
			streamer, err := newStreamer(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(backend(streamer), convey.ShouldEqual, chat.BackendAnthropic)
		})

		convey.Convey("When only Bedrock is enabled", func() {
			awsEnv(t)
			cfg := config.New()
			cfg.UseBedrock = true
			cfg.AWSRegion = "eu-central-1"

			streamer, err := newStreamer(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(backend(streamer), convey.ShouldEqual, chat.BackendBedrock)
			convey.So(chat.SelectModel(cfg.ClaudeModel, cfg.BedrockChat()), convey.ShouldEqual, chat.DefaultBedrockModel)
		})

		convey.Convey("When Bedrock is enabled next to an API key, the key wins", func() {
			cfg := config.New()
			cfg.UseBedrock = true
			cfg.AnthropicAPIKey = "sk-test"

			streamer, err := newStreamer(context.Background(), cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(backend(streamer), convey.ShouldEqual, chat.BackendAnthropic)
			convey.So(chat.SelectModel(cfg.ClaudeModel, cfg.BedrockChat()), convey.ShouldEqual, chat.DefaultAnthropicModel)
		})
	})
}

func TestRoutes(t *testing.T) {
	convey.Convey("Given a started service built from the default config", t, func() {
		cfg := config.New()
		cfg.DataDir = t.TempDir()
		cfg.KillWorkerCount = 1

		svc := app.New(serviceOptions(cfg, nil, nil, logger.Get())...)
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop(context.Background())

		mux := routes(context.Background(), svc)
		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		convey.Convey("Then the API, docs and landing page are served", func() {
			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/").Body.String(), convey.ShouldContainSubstring, "Connect Extensions")
			convey.So(get("/api/chat/config").Body.String(), convey.ShouldContainSubstring, `"enabled":false`)
		})

		convey.Convey("Then platform routes report the missing platform", func() {
			convey.So(get("/api/contents").Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("Then the service metrics update without panicking", func() {
			convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("The HTTP server leaves writes unbounded for streaming", t, func() {
		srv := newHTTPServer(":0", http.NewServeMux())
		convey.So(srv.Addr, convey.ShouldEqual, ":0")
		convey.So(srv.WriteTimeout, convey.ShouldEqual, time.Duration(0))
		convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("System metrics update without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("The updater returns once its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()
			select {
			case <-done:
				convey.So(true, convey.ShouldBeTrue)
			case <-time.After(2 * time.Second):
				convey.So("updater still running", convey.ShouldBeEmpty)
			}
		})
	})
}

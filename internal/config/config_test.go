package config_test

import (
	"testing"
	"time"

	"github.com/okian/connect-extensions/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.VisitorCacheTTL(), convey.ShouldEqual, time.Hour)
			convey.So(cfg.KillPollAttempts, convey.ShouldEqual, 30)
			convey.So(cfg.KillPollInterval(), convey.ShouldEqual, time.Second)
			convey.So(cfg.ListConcurrency, convey.ShouldEqual, 8)
			convey.So(cfg.HealthTimeout(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.ChatEnabled(), convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Bedrock chat needs the flag and no API key", func() {
			cfg := config.New()
			cfg.UseBedrock = true
			convey.So(cfg.ChatEnabled(), convey.ShouldBeTrue)
			convey.So(cfg.BedrockChat(), convey.ShouldBeTrue)

			cfg.AnthropicAPIKey = "sk-test"
			convey.So(cfg.BedrockChat(), convey.ShouldBeFalse)
		})
	})
}

func TestEnvHelpers(t *testing.T) {
	convey.Convey("Given boolean strings", t, func() {
		for _, v := range []string{"1", "true", "TRUE", "yes", " Yes "} {
			convey.So(config.ParseBool(v, false), convey.ShouldBeTrue)
		}
		for _, v := range []string{"0", "false", "No"} {
			convey.So(config.ParseBool(v, true), convey.ShouldBeFalse)
		}
		convey.So(config.ParseBool("maybe", true), convey.ShouldBeTrue)
		convey.So(config.ParseBool("", false), convey.ShouldBeFalse)
	})

	convey.Convey("Given numeric environment variables", t, func() {
		t.Setenv("TEST_INT", "42")
		t.Setenv("TEST_BAD_INT", "4x")
		t.Setenv("TEST_FLOAT", "0.25")
		t.Setenv("TEST_BOOL", "yes")

		convey.So(config.IntEnv("TEST_INT", 1), convey.ShouldEqual, 42)
		convey.So(config.IntEnv("TEST_BAD_INT", 7), convey.ShouldEqual, 7)
		convey.So(config.IntEnv("TEST_UNSET_INT", 9), convey.ShouldEqual, 9)
		convey.So(config.FloatEnv("TEST_FLOAT", 1), convey.ShouldEqual, 0.25)
		convey.So(config.FloatEnv("TEST_BAD_INT", 1.5), convey.ShouldEqual, 1.5)
		convey.So(config.BoolEnv("TEST_BOOL", false), convey.ShouldBeTrue)
		convey.So(config.StringEnv("TEST_INT", "x"), convey.ShouldEqual, "42")
		convey.So(config.StringEnv("TEST_UNSET_STRING", "x"), convey.ShouldEqual, "x")
	})
}

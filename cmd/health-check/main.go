package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/connect-extensions/internal/healthcheck"
	"github.com/okian/connect-extensions/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return healthcheck.ExitUsage
	}

	cfg, err := healthcheck.ParseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return healthcheck.ExitPass
	}
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return healthcheck.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := healthcheck.Run(ctx, cfg, os.Stdout, time.Now())
	if err != nil {
		logger.Get().Error(ctx, "health check failed", logger.Error(err))
	}
	return code
}

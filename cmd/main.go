package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"campus-assistant/handler"
	"campus-assistant/internal/app"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := app.ConfigFromEnv(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients and services ----
	deps, closeDeps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize dependencies", "err", err)
		os.Exit(1)
	}
	defer func() { _ = closeDeps() }()

	// ---- Handler ----
	h, err := handler.NewHandler(deps.Chat, deps.Auth)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

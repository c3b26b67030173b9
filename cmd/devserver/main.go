package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"campus-assistant/handler"
	"campus-assistant/internal/app"
	"campus-assistant/internal/devserver"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := app.ConfigFromEnv(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	deps, closeDeps, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize dependencies", "err", err)
		os.Exit(1)
	}
	defer func() { _ = closeDeps() }()

	h, err := handler.NewHandler(deps.Chat, deps.Auth, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: devserver.NewRouter(devserver.RouterConfig{
			Handler:     h,
			CORSOrigins: cfg.CORSOrigins,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		slog.Info("devserver listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("devserver failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down devserver")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("devserver shutdown failed", "err", err)
	}
}

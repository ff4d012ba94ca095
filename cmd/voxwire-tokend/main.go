// Command voxwire-tokend runs the local ephemeral-token provider. It mints
// short-lived client secrets against the hosted API so the server credential
// stays server-side; demo clients fetch GET /session before connecting.
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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voxwire/voxwire/internal/dotenv"
	"github.com/voxwire/voxwire/pkg/tokenserver"
)

func main() {
	if err := dotenv.Load(); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := tokenserver.Config{
		UpstreamURL: envOr("VOXWIRE_MINT_URL", "https://api.openai.com/v1/realtime/sessions"),
		APIKey:      os.Getenv("VOXWIRE_API_KEY"),
		Model:       envOr("VOXWIRE_MODEL", "gpt-4o-realtime-preview"),
		Logger:      logger,
	}
	handler, err := tokenserver.NewHandler(cfg)
	if err != nil {
		logger.Error("configure token server", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	handler.Register(e)

	addr := envOr("VOXWIRE_TOKEND_ADDR", ":8787")
	logger.Info("token provider listening", "addr", addr)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("token provider stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

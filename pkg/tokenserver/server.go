// Package tokenserver implements the local ephemeral-token provider: a
// small HTTP surface that mints short-lived client secrets against the
// hosted API so the server credential never reaches the client.
package tokenserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Config configures the token provider.
type Config struct {
	// UpstreamURL is the hosted API's session-mint endpoint. Required.
	UpstreamURL string

	// APIKey is the server credential used to mint client secrets.
	// Required; never sent to the client.
	APIKey string

	// Model is the model id requested for minted sessions.
	Model string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Handler serves the token-mint endpoint.
type Handler struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewHandler creates a token provider handler.
func NewHandler(cfg Config) (*Handler, error) {
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return nil, fmt.Errorf("token server requires an upstream URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("token server requires an API key")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, client: client, logger: logger}, nil
}

// Register mounts the provider routes on an echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/session", h.MintSession)
}

// MintSession mints one ephemeral client secret and relays the upstream
// response. Clients read client_secret.value from the body.
func (h *Handler) MintSession(c echo.Context) error {
	body, err := json.Marshal(map[string]string{"model": h.cfg.Model})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "encode mint request"})
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodPost, h.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "build mint request"})
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	req.Header.Set("Content-Type", echo.MIMEApplicationJSON)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error("token mint failed", "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "token mint failed"})
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		h.logger.Error("token mint read failed", "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "token mint failed"})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Warn("token mint rejected", "status", resp.StatusCode)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error":  "token mint rejected",
			"detail": strings.TrimSpace(string(payload)),
		})
	}

	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, payload)
}

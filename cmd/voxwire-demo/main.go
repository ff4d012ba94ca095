// Command voxwire-demo connects one realtime session and bridges it to the
// terminal: typed lines go out as user turns, streamed assistant text and
// transcripts print as they arrive, and two demo functions are callable by
// the remote peer.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxwire/voxwire/internal/dotenv"
	"github.com/voxwire/voxwire/pkg/core/session"
	"github.com/voxwire/voxwire/pkg/core/signal"
	"github.com/voxwire/voxwire/pkg/core/tools"
	"github.com/voxwire/voxwire/pkg/core/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voxwire-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := dotenv.Load(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if os.Getenv("VOXWIRE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signalContext()
	defer stop()

	tokenURL := envOr("VOXWIRE_TOKEN_URL", "http://localhost:8787/session")
	model := envOr("VOXWIRE_MODEL", "gpt-4o-realtime-preview")

	token, err := signal.FetchClientSecret(ctx, nil, tokenURL)
	if err != nil {
		return fmt.Errorf("fetch ephemeral token: %w", err)
	}
	logger.Info("ephemeral token acquired", "token", signal.RedactToken(token))

	registry := tools.NewRegistry()
	registry.MustRegister(tools.Make("get_weather", "Get the current weather for a location",
		func(ctx context.Context, input struct {
			Location string `json:"location" desc:"City name"`
			Units    string `json:"units,omitempty" desc:"Temperature units" enum:"celsius,fahrenheit"`
		}) (any, error) {
			units := input.Units
			if units == "" {
				units = "celsius"
			}
			return map[string]any{
				"location":    input.Location,
				"temperature": 21,
				"units":       units,
				"conditions":  "partly cloudy",
			}, nil
		},
	))
	registry.MustRegister(tools.Make("get_time", "Get the current local time",
		func(ctx context.Context, input struct{}) (any, error) {
			return map[string]string{"time": time.Now().Format(time.RFC3339)}, nil
		},
	))

	trans, err := buildTransport(model, logger)
	if err != nil {
		return err
	}

	sess, err := session.New(session.Config{
		Transport: trans,
		Registry:  registry,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Connect(ctx, token); err != nil {
		return fmt.Errorf("connect: %w (status %s)", err, sess.Status())
	}

	select {
	case <-sess.Opened():
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info("session open", "status", sess.Status())

	go printUpdates(sess)

	fmt.Println("type a message and press enter (ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sess.SendUserText(line); err != nil {
			logger.Warn("send failed", "error", err)
		}
	}
	return scanner.Err()
}

func printUpdates(sess *session.Session) {
	for {
		select {
		case <-sess.Done():
			return
		case update := <-sess.Updates():
			switch u := update.(type) {
			case session.TextDeltaUpdate:
				fmt.Print(u.Delta)
			case session.TranscriptUpdate:
				fmt.Printf("\n[transcript] %s\n", u.Transcript)
			case session.InvocationUpdate:
				inv := u.Invocation
				if inv.Error != "" {
					fmt.Printf("\n[tool %s #%s] error: %s\n", inv.Name, inv.ID, inv.Error)
				} else {
					fmt.Printf("\n[tool %s #%s] %s\n", inv.Name, inv.ID, inv.Result)
				}
			case session.StateUpdate:
				if u.To == session.StateClosed || u.To == session.StateError {
					fmt.Printf("\n[session %s]\n", sess.Status())
				}
			}
		}
	}
}

func buildTransport(model string, logger *slog.Logger) (transport.Transport, error) {
	switch envOr("VOXWIRE_TRANSPORT", "webrtc") {
	case "websocket":
		return transport.NewWebSocket(transport.WebSocketConfig{
			URL:    envOr("VOXWIRE_REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
			Model:  model,
			Logger: logger,
		})
	default:
		return transport.NewWebRTC(transport.WebRTCConfig{
			Negotiator: &signal.Exchange{
				BaseURL: envOr("VOXWIRE_REALTIME_URL", "https://api.openai.com/v1/realtime"),
				Model:   model,
				Logger:  logger,
			},
			Logger: logger,
		})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

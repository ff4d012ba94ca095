package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxwire/voxwire/pkg/core"
)

const defaultDialTimeout = 15 * time.Second

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	// URL is the realtime endpoint (ws:// or wss://; http schemes are
	// rewritten). Required.
	URL string

	// Model is appended as a query parameter when set.
	Model string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

// WebSocket carries the control-event stream over a plain WebSocket
// connection. No offer/answer handshake and no media tracks; the hosted API
// accepts the same JSON frames on both transports.
type WebSocket struct {
	cfg    WebSocketConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	open bool

	closeOnce  sync.Once
	notifyOnce sync.Once
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("websocket transport requires a URL")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocket{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Open dials the endpoint authorized by the ephemeral token. OnOpen fires
// from a transport goroutine once the dial succeeded.
func (t *WebSocket) Open(ctx context.Context, token string, h Handlers) error {
	endpoint, err := t.endpoint()
	if err != nil {
		return err
	}

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+token)

	dialer := t.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return core.NewSignalingError(resp.StatusCode, fmt.Sprintf("websocket dial failed: %v", err))
		}
		return &core.TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}

	t.mu.Lock()
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	go func() {
		if h.OnOpen != nil {
			h.OnOpen()
		}
		t.readLoop(conn, h)
	}()
	return nil
}

func (t *WebSocket) readLoop(conn *websocket.Conn, h Handlers) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.open = false
			t.mu.Unlock()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.notifyClose(h, nil)
			} else {
				t.notifyClose(h, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if h.OnMessage != nil {
			h.OnMessage(data)
		}
	}
}

// Send writes one text frame.
func (t *WebSocket) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open || t.conn == nil {
		return core.NewChannelError("control channel is not open")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return core.NewChannelError(fmt.Sprintf("control channel write: %v", err))
	}
	return nil
}

// Close sends a close frame and releases the connection. Idempotent.
func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.open = false
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(2*time.Second),
			)
			_ = conn.Close()
		}
	})
	return nil
}

func (t *WebSocket) notifyClose(h Handlers, err error) {
	t.notifyOnce.Do(func() {
		if h.OnClose != nil {
			h.OnClose(err)
		}
	})
}

func (t *WebSocket) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimSpace(t.cfg.URL))
	if err != nil {
		return "", core.NewInputError(fmt.Sprintf("invalid websocket URL: %v", err))
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", core.NewInputError("websocket URL must use ws(s) or http(s)")
	}
	if model := strings.TrimSpace(t.cfg.Model); model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Package signal performs the short-lived session-establishment exchanges:
// fetching an ephemeral client secret from the local token provider and
// trading the local session description for the remote one at the hosted
// signaling endpoint.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxwire/voxwire/pkg/core"
)

// newDefaultHTTPClient configures sane transport-level timeouts while
// keeping the overall request lifetime controlled by context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// FetchClientSecret retrieves an ephemeral token from the local provider.
// The provider returns JSON containing client_secret.value; absence of that
// field is a fatal input-validation error.
func FetchClientSecret(ctx context.Context, client *http.Client, tokenURL string) (string, error) {
	if client == nil {
		client = newDefaultHTTPClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", core.NewInputError(fmt.Sprintf("invalid token URL: %v", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &core.TransportError{Op: http.MethodGet, URL: tokenURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &core.TransportError{Op: http.MethodGet, URL: tokenURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewInputError(fmt.Sprintf("token provider returned status %d", resp.StatusCode))
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", core.NewInputError(fmt.Sprintf("token provider returned malformed JSON: %v", err))
	}
	token := strings.TrimSpace(payload.ClientSecret.Value)
	if token == "" {
		return "", core.NewInputError("token provider response missing client_secret.value")
	}
	return token, nil
}

// Exchange performs the offer/answer handshake against the remote signaling
// endpoint. One exchange negotiates one session; there is no retry.
type Exchange struct {
	// BaseURL is the signaling endpoint, without the model parameter.
	BaseURL string

	// Model selects the remote model for the session.
	Model string

	// HTTPClient defaults to a client with transport-level timeouts only;
	// pass a context deadline to bound the whole call.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Negotiate sends the local session description authorized by the ephemeral
// token and returns the remote description verbatim. A non-2xx response is a
// *core.Error of type ErrSignaling carrying the remote status and body,
// fatal for the current connection attempt.
func (e *Exchange) Negotiate(ctx context.Context, localDescription, token string) (string, error) {
	if strings.TrimSpace(localDescription) == "" {
		return "", core.NewInputError("local session description is empty")
	}
	if strings.TrimSpace(token) == "" {
		return "", core.NewInputError("ephemeral token is empty")
	}

	endpoint, err := e.endpoint()
	if err != nil {
		return "", err
	}

	client := e.HTTPClient
	if client == nil {
		client = newDefaultHTTPClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(localDescription))
	if err != nil {
		return "", core.NewInputError(fmt.Sprintf("invalid signaling endpoint: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("negotiating session", "endpoint", endpoint, "model", e.Model, "token", RedactToken(token))

	resp, err := client.Do(req)
	if err != nil {
		return "", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewSignalingError(resp.StatusCode, string(body))
	}

	remote := string(body)
	if strings.TrimSpace(remote) == "" {
		return "", core.NewSignalingError(resp.StatusCode, "empty remote session description")
	}
	return remote, nil
}

func (e *Exchange) endpoint() (string, error) {
	base := strings.TrimSpace(e.BaseURL)
	if base == "" {
		return "", core.NewInputError("signaling base URL is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", core.NewInputError(fmt.Sprintf("invalid signaling base URL: %v", err))
	}
	if model := strings.TrimSpace(e.Model); model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// RedactToken shortens a bearer token for log output. Tokens are never
// logged in full.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-2:]
}

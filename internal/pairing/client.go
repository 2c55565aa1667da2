// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pairing talks to the pairing backend: it exchanges the hardware API
// key for a session token and holds the hardware side of the websocket bridge
// to the visitor's mobile app.
package pairing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/ManuGH/kiosk/internal/log"
)

// ErrNoToken is returned when the backend answers without a token.
var ErrNoToken = errors.New("pairing backend returned no token")

const (
	defaultRequestTimeout = 15 * time.Second
	unknownExpiryTimeout  = 90 * time.Second
	minAppReadyTimeout    = 10 * time.Second
	expirySafetyMargin    = 5 * time.Second
)

// QRPayload is what the kiosk renders as a QR code for the mobile app.
type QRPayload struct {
	Token         string `json:"token"`
	WSAppURL      string `json:"ws_app_url"`
	WSHardwareURL string `json:"ws_hardware_url"`
	ServerHost    string `json:"server_host"`
}

// Token is an issued pairing token.
type Token struct {
	Token     string
	ExpiresIn time.Duration
	IssuedAt  time.Time
	QR        QRPayload
}

// ExpiresAt is the absolute expiry, zero when unknown.
func (t Token) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.IssuedAt.Add(t.ExpiresIn)
}

// AppReadyTimeout is how long to wait for the app to attach:
// max(10s, expires_in-5s), or 90s when the expiry is unknown.
func (t Token) AppReadyTimeout() time.Duration {
	if t.ExpiresIn <= 0 {
		return unknownExpiryTimeout
	}
	return max(minAppReadyTimeout, t.ExpiresIn-expirySafetyMargin)
}

// Client is the pairing backend client.
type Client struct {
	apiURL string
	wsURL  string
	apiKey string
	http   *http.Client
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewClient builds a client from backend configuration.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		wsURL:  strings.TrimRight(cfg.WSURL, "/"),
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger: log.WithComponent("pairing"),
	}
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type authResponse struct {
	Token     string  `json:"token"`
	ExpiresIn float64 `json:"expires_in"`
}

// RequestToken exchanges the hardware API key for a session token.
func (c *Client) RequestToken(ctx context.Context) (Token, error) {
	body, err := json.Marshal(authRequest{APIKey: c.apiKey})
	if err != nil {
		return Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info().Msg("requesting pairing token")
	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Token{}, fmt.Errorf("token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Token{}, fmt.Errorf("token request: decode: %w", err)
	}
	if ar.Token == "" {
		return Token{}, ErrNoToken
	}

	return Token{
		Token:     ar.Token,
		ExpiresIn: time.Duration(ar.ExpiresIn * float64(time.Second)),
		IssuedAt:  time.Now(),
		QR:        c.QRPayload(ar.Token),
	}, nil
}

// QRPayload builds the payload the mobile app scans.
func (c *Client) QRPayload(token string) QRPayload {
	host := c.apiURL
	if u, err := url.Parse(c.apiURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return QRPayload{
		Token:         token,
		WSAppURL:      c.wsURL + "/app",
		WSHardwareURL: c.wsURL + "/hardware",
		ServerHost:    host,
	}
}

// Open connects the hardware side of the bridge for token.
func (c *Client) Open(ctx context.Context, token string) (Bridge, error) {
	uri := c.wsURL + "/hardware?" + url.Values{"token": {token}}.Encode()
	conn, resp, err := c.dialer.DialContext(ctx, uri, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("bridge connect: %w", err)
	}
	c.logger.Info().Str("url", c.wsURL+"/hardware").Msg("bridge connected")
	return newWSBridge(conn, c.logger), nil
}

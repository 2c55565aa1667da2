// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/kiosk/internal/log"
)

// HandlerConfig tunes the UI websocket.
type HandlerConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// CheckOrigin overrides the origin policy. The kiosk UI is served from
	// localhost, so the default allows any origin.
	CheckOrigin func(*http.Request) bool
}

// Handler streams broadcaster events to a websocket client.
type Handler struct {
	b        *Broadcaster
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler serves subscriptions of b.
func NewHandler(b *Broadcaster, cfg HandlerConfig) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	check := cfg.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Handler{
		b:   b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     check,
		},
		logger: log.WithComponent("events"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("ui websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.b.Subscribe()
	defer sub.Close()

	logger := log.WithContext(r.Context(), h.logger)
	logger.Info().Str("remote", r.RemoteAddr).Msg("ui client connected")
	defer func() { logger.Info().Str("remote", r.RemoteAddr).Msg("ui client disconnected") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The UI only sends pings; reading keeps control frames flowing and
	// notices the disconnect.
	conn.SetReadLimit(4096)
	pongWait := 3 * h.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error().Err(err).Str("type", string(ev.Type)).Msg("encode ui event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug().Err(err).Msg("ui websocket write failed")
				return
			}
		}
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pairing

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrBridgeClosed is returned by Upload after the bridge went away.
var ErrBridgeClosed = errors.New("bridge closed")

// Kind classifies bridge messages delivered to the session.
type Kind string

const (
	KindJoined          Kind = "joined"
	KindAppReady        Kind = "app_ready"
	KindFromApp         Kind = "from_app"
	KindBackendResponse Kind = "backend_response"
	KindStatus          Kind = "status"
	KindError           Kind = "error"
)

// Message is a decoded bridge message.
type Message struct {
	Kind       Kind
	Role       string
	PlatformID string
	StatusCode int
	LatencyMS  float64
	Code       string
	Text       string
	Data       map[string]any
}

// Failed reports whether the message signals a backend-side failure.
func (m Message) Failed() bool {
	return m.Kind == KindError || (m.Kind == KindBackendResponse && m.StatusCode >= 400)
}

// Bridge is the hardware side of the pairing websocket.
type Bridge interface {
	// Events yields incoming messages. Closed when the connection ends.
	Events() <-chan Message
	// Upload sends the best frame to the backend via the app.
	Upload(ctx context.Context, platformID string, jpeg []byte) error
	Close() error
}

type wireMessage struct {
	Type       string          `json:"type"`
	Role       string          `json:"role,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	LatencyMS  float64         `json:"latency_ms,omitempty"`
	Msg        string          `json:"msg,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       any             `json:"code,omitempty"`
}

type outgoing struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type uploadData struct {
	PlatformID  string `json:"platform_id"`
	ImageBase64 string `json:"image_base64"`
}

const writeTimeout = 10 * time.Second

type wsBridge struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	events chan Message
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSBridge(conn *websocket.Conn, logger zerolog.Logger) *wsBridge {
	b := &wsBridge{
		conn:   conn,
		logger: logger,
		events: make(chan Message, 32),
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *wsBridge) Events() <-chan Message { return b.events }

func (b *wsBridge) readLoop() {
	defer close(b.events)
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					b.logger.Info().Msg("bridge closed by backend")
				} else {
					b.logger.Warn().Err(err).Msg("bridge read failed")
				}
			}
			return
		}

		var wm wireMessage
		if err := json.Unmarshal(raw, &wm); err != nil {
			b.logger.Warn().Err(err).Msg("invalid json from bridge")
			continue
		}
		msg, ok := b.handle(wm)
		if !ok {
			continue
		}
		select {
		case b.events <- msg:
		case <-b.done:
			return
		}
	}
}

// handle answers protocol-level messages and maps the rest for the session.
func (b *wsBridge) handle(wm wireMessage) (Message, bool) {
	b.logger.Debug().Str("type", wm.Type).Msg("bridge message received")

	var data map[string]any
	if len(wm.Data) > 0 {
		_ = json.Unmarshal(wm.Data, &data)
	}

	switch wm.Type {
	case "ping":
		if err := b.send(outgoing{Type: "pong"}); err != nil {
			b.logger.Warn().Err(err).Msg("pong failed")
		}
		return Message{}, false

	case "joined":
		return Message{Kind: KindJoined, Role: wm.Role, Data: data}, true

	case "from_app":
		if s, _ := data["message"].(string); s == "hello" {
			if err := b.send(outgoing{Type: "to_app", Data: map[string]string{"message": "hello"}}); err != nil {
				b.logger.Warn().Err(err).Msg("hello reply failed")
			}
		}
		if pid, _ := data["platform_id"].(string); pid != "" {
			return Message{Kind: KindAppReady, PlatformID: pid, Data: data}, true
		}
		return Message{Kind: KindFromApp, Data: data}, true

	case "backend_response":
		return Message{Kind: KindBackendResponse, StatusCode: wm.StatusCode, LatencyMS: wm.LatencyMS, Data: data}, true

	case "status":
		return Message{Kind: KindStatus, Text: wm.Msg, Data: data}, true

	case "error":
		text := wm.Message
		if text == "" {
			text = "unknown_error"
		}
		code := ""
		if wm.Code != nil {
			if enc, err := json.Marshal(wm.Code); err == nil {
				code = string(enc)
			}
		}
		return Message{Kind: KindError, Text: text, Code: code, Data: data}, true
	}

	b.logger.Debug().Str("type", wm.Type).Msg("ignoring unknown bridge message")
	return Message{}, false
}

func (b *wsBridge) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, payload)
}

func (b *wsBridge) Upload(ctx context.Context, platformID string, jpeg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.send(outgoing{
		Type: "to_backend",
		Data: uploadData{
			PlatformID:  platformID,
			ImageBase64: base64.StdEncoding.EncodeToString(jpeg),
		},
	})
}

func (b *wsBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.writeMu.Lock()
		close(b.done)
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		b.writeMu.Unlock()
		err = b.conn.Close()
	})
	return err
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pairing

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/kiosk/internal/config"
)

type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	authResp string
	frames   chan map[string]any
	script   func(conn *websocket.Conn)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	fb := &fakeBackend{t: t, frames: make(chan map[string]any, 16)}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.APIKey != "hw-key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(fb.authResp))
	})
	mux.HandleFunc("/ws/hardware", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var m map[string]any
				_ = json.Unmarshal(raw, &m)
				fb.frames <- m
			}
		}()
		if fb.script != nil {
			fb.script(conn)
		}
		time.Sleep(500 * time.Millisecond)
	})
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) client(apiKey string) *Client {
	return NewClient(config.BackendConfig{
		APIURL:         fb.srv.URL,
		WSURL:          "ws" + strings.TrimPrefix(fb.srv.URL, "http") + "/ws",
		APIKey:         apiKey,
		RequestTimeout: 2 * time.Second,
	})
}

func (fb *fakeBackend) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-fb.frames:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("backend received nothing")
		return nil
	}
}

func TestRequestToken(t *testing.T) {
	fb := newFakeBackend(t)
	fb.authResp = `{"token":"tok-1","expires_in":60}`

	tok, err := fb.client("hw-key").RequestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.Token)
	assert.Equal(t, 60*time.Second, tok.ExpiresIn)
	assert.Equal(t, 55*time.Second, tok.AppReadyTimeout())
	assert.Equal(t, "tok-1", tok.QR.Token)
	assert.True(t, strings.HasSuffix(tok.QR.WSAppURL, "/ws/app"))
	assert.True(t, strings.HasSuffix(tok.QR.WSHardwareURL, "/ws/hardware"))
	assert.Equal(t, strings.TrimPrefix(fb.srv.URL, "http://"), tok.QR.ServerHost)
}

func TestRequestToken_Failures(t *testing.T) {
	fb := newFakeBackend(t)
	fb.authResp = `{"expires_in":60}`

	_, err := fb.client("hw-key").RequestToken(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = fb.client("wrong").RequestToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	c := NewClient(config.BackendConfig{APIURL: "http://127.0.0.1:1", WSURL: "ws://127.0.0.1:1"})
	_, err = c.RequestToken(context.Background())
	assert.Error(t, err)
}

func TestAppReadyTimeout(t *testing.T) {
	assert.Equal(t, 90*time.Second, Token{}.AppReadyTimeout())
	assert.Equal(t, 10*time.Second, Token{ExpiresIn: 12 * time.Second}.AppReadyTimeout())
	assert.Equal(t, 295*time.Second, Token{ExpiresIn: 300 * time.Second}.AppReadyTimeout())
	assert.True(t, Token{}.ExpiresAt().IsZero())
}

func TestBridge_ProtocolAndEvents(t *testing.T) {
	fb := newFakeBackend(t)
	fb.script = func(conn *websocket.Conn) {
		for _, m := range []string{
			`{"type":"joined","role":"hardware"}`,
			`{"type":"ping"}`,
			`{"type":"from_app","data":{"message":"hello"}}`,
			`{"type":"from_app","data":{"platform_id":"p-42"}}`,
			`{"type":"status","msg":"processing"}`,
			`{"type":"backend_response","status_code":200,"latency_ms":12.5,"data":{"ok":true}}`,
			`{"type":"error","code":500,"message":"boom"}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
	}

	ctx := context.Background()
	br, err := fb.client("hw-key").Open(ctx, "tok-1")
	require.NoError(t, err)

	var kinds []Kind
	var ready, failed Message
	for len(kinds) < 6 {
		select {
		case m := <-br.Events():
			kinds = append(kinds, m.Kind)
			if m.Kind == KindAppReady {
				ready = m
			}
			if m.Failed() {
				failed = m
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing events, got %v", kinds)
		}
	}
	assert.Equal(t, []Kind{KindJoined, KindFromApp, KindAppReady, KindStatus, KindBackendResponse, KindError}, kinds)
	assert.Equal(t, "p-42", ready.PlatformID)
	assert.Equal(t, "boom", failed.Text)
	assert.Equal(t, "500", failed.Code)

	assert.Equal(t, "pong", fb.next(t)["type"])
	hello := fb.next(t)
	assert.Equal(t, "to_app", hello["type"])
	assert.Equal(t, "hello", hello["data"].(map[string]any)["message"])

	require.NoError(t, br.Upload(ctx, "p-42", []byte{0xff, 0xd8}))
	up := fb.next(t)
	assert.Equal(t, "to_backend", up["type"])
	data := up["data"].(map[string]any)
	assert.Equal(t, "p-42", data["platform_id"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8}), data["image_base64"])

	require.NoError(t, br.Close())
	assert.ErrorIs(t, br.Upload(ctx, "p-42", nil), ErrBridgeClosed)
	for range br.Events() {
	}
}

func TestOpen_Fails(t *testing.T) {
	c := NewClient(config.BackendConfig{APIURL: "http://127.0.0.1:1", WSURL: "ws://127.0.0.1:1", RequestTimeout: time.Second})
	_, err := c.Open(context.Background(), "tok-1")
	assert.Error(t, err)
}

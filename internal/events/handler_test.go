// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_StreamsEvents(t *testing.T) {
	b := NewBroadcaster(4)
	b.Publish(State("idle", nil, ""))

	srv := httptest.NewServer(NewHandler(b, HandlerConfig{WriteTimeout: time.Second, PingInterval: time.Second}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Event
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.Equal(t, TypeState, first.Type)
	assert.Equal(t, "idle", first.Phase)

	b.Publish(Event{Type: TypeMetrics, Phase: "human_detect", Data: map[string]any{"composite": 0.8}})
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	var second map[string]any
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.Equal(t, "metrics", second["type"])
	assert.Equal(t, 0.8, second["data"].(map[string]any)["composite"])
}

func TestHandler_RemovesSubscriberOnDisconnect(t *testing.T) {
	b := NewBroadcaster(4)
	srv := httptest.NewServer(NewHandler(b, HandlerConfig{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	_ = conn.Close()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

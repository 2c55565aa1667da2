// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package liveness

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPerceiver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0xff, 0xd8}, body)
		switch r.URL.Path {
		case "/process":
			_, _ = w.Write([]byte(`{"faces":[{"x":1,"y":2,"w":30,"h":40,"confidence":0.9}],"depth_ok":true,"stability":0.8,"focus":600,"stable_alive":true}`))
		case "/detect":
			_, _ = w.Write([]byte(`{"face":true,"confidence":0.7}`))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPPerceiver(srv.URL+"/", nil)
	res, err := p.Process(context.Background(), testFrame())
	require.NoError(t, err)
	assert.True(t, res.Passing())
	assert.Equal(t, 30, res.Faces[0].Width)
	assert.Equal(t, []byte{0xff, 0xd8}, res.Image)

	ok, conf, err := p.DetectFace(context.Background(), testFrame())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, conf, 1e-9)
}

func TestHTTPPerceiver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPPerceiver(srv.URL, nil).Process(context.Background(), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

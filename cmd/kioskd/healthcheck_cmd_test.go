// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	var out, errOut bytes.Buffer
	assert.Equal(t, 0, healthcheck([]string{"-mode", "live", "-addr", addr}, &out, &errOut))
	assert.Contains(t, out.String(), "successful (live)")

	errOut.Reset()
	assert.Equal(t, 1, healthcheck([]string{"-addr", addr}, &out, &errOut))
	assert.Contains(t, errOut.String(), "503")

	assert.Equal(t, 2, healthcheck([]string{"-bogus"}, &out, &errOut))
}

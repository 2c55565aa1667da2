// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_KeepsNewestSample(t *testing.T) {
	in := strings.NewReader(`{"distance_mm":700,"timestamp_ms":1000}
garbage
{"distance_mm":420,"timestamp_ms":2000}
`)
	lr := NewLineReader(in)
	<-lr.Done()

	r, ok, err := lr.ReadDistance(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 420, r.DistanceMM)
	assert.Equal(t, int64(2000), r.At.UnixMilli())

	_, ok, err = lr.ReadDistance(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestProcessReader(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := StartProcessReader(ctx, "sh", "-c", `echo '{"distance_mm":333}'; sleep 30`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, ok, _ := p.ReadDistance(ctx)
		return ok && r.DistanceMM == 333
	}, 2*time.Second, 10*time.Millisecond)

	_ = p.Close()
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("reader did not stop after Close")
	}
	_, _, err = p.ReadDistance(ctx)
	assert.ErrorIs(t, err, ErrReaderClosed)
}

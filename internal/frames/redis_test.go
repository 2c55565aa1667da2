// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package frames

import (
	"context"
	"testing"

	"github.com/ManuGH/kiosk/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Ping(context.Background()).Err())

	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(context.Background(), config.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

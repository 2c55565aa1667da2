// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package frames

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/kiosk/internal/hardware"
	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFrames  = "kiosk:frames"
	testControl = "kiosk:capture:control"
	testModeKey = "kiosk:capture:mode"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSubscriber_LatestAndNext(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()

	sub := NewSubscriber(client, testFrames, testControl, 2*time.Second)
	_, ok := sub.Latest()
	assert.False(t, ok)

	require.NoError(t, sub.Start(ctx))
	defer func() { require.NoError(t, sub.Stop(ctx)) }()
	assert.True(t, sub.Streaming())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		n := uint32(0)
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				n++
				client.Publish(ctx, testFrames, Encode(Frame{Width: 2, Height: 2, Number: n, JPEG: []byte{1, 2, 3}}))
			}
		}
	}()

	f, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f.JPEG)
	assert.NotZero(t, f.Number)

	latest, ok := sub.Latest()
	require.True(t, ok)
	assert.GreaterOrEqual(t, latest.Number, f.Number)
	assert.False(t, sub.LastFrameAt().IsZero())
}

func TestSubscriber_NextTimesOut(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()

	sub := NewSubscriber(client, testFrames, testControl, 30*time.Millisecond)
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, ErrNotStreaming)

	require.NoError(t, sub.Start(ctx))
	defer func() { _ = sub.Stop(ctx) }()

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrFrameTimeout)
}

func TestSubscriber_MalformedFramesAreDropped(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()

	sub := NewSubscriber(client, testFrames, testControl, time.Second)
	require.NoError(t, sub.Start(ctx))
	defer func() { _ = sub.Stop(ctx) }()

	require.NoError(t, client.Publish(ctx, testFrames, []byte("short")).Err())
	require.NoError(t, client.Publish(ctx, testFrames, Encode(Frame{Number: 9, JPEG: []byte{0xff}})).Err())

	require.Eventually(t, func() bool {
		f, ok := sub.Latest()
		return ok && f.Number == 9
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), sub.malformed.Load())
}

func TestSubscriber_StartStopPublishesControl(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()

	ctl := client.Subscribe(ctx, testControl)
	_, err := ctl.Receive(ctx)
	require.NoError(t, err)
	defer ctl.Close()
	msgs := ctl.Channel()

	sub := NewSubscriber(client, testFrames, testControl, time.Second)
	require.NoError(t, sub.Start(ctx))
	require.NoError(t, sub.Start(ctx), "second start is a no-op")
	require.NoError(t, sub.Stop(ctx))
	require.NoError(t, sub.Stop(ctx), "second stop is a no-op")

	var got []string
	for len(got) < 2 {
		select {
		case m := <-msgs:
			var c Control
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &c))
			got = append(got, c.Command)
		case <-time.After(2 * time.Second):
			t.Fatalf("control messages missing, got %v", got)
		}
	}
	assert.Equal(t, []string{CommandStart, CommandStop}, got)
}

func TestSubscriber_StartFailsWhenRedisDown(t *testing.T) {
	mr, client := setupMiniRedis(t)
	mr.Close()

	sub := NewSubscriber(client, testFrames, testControl, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, sub.Start(ctx))
	assert.False(t, sub.Streaming())
}

func TestSubscriber_AsRegistryPipeline(t *testing.T) {
	_, client := setupMiniRedis(t)
	ctx := context.Background()

	sub := NewSubscriber(client, testFrames, testControl, time.Second)
	reg := hardware.NewRegistry(sub)

	require.NoError(t, reg.Acquire(ctx, hardware.SourceSession))
	assert.True(t, sub.Streaming())
	reg.Release(ctx, hardware.SourceSession)
	assert.False(t, sub.Streaming())
}

func TestModePublisher_ApplyMode(t *testing.T) {
	mr, client := setupMiniRedis(t)
	ctx := context.Background()

	pub := NewModePublisher(client, testModeKey, testControl)
	mode, err := pub.StoredMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, hardware.ModeIdleDetection, mode)

	sel := hardware.NewModeSelector(pub)
	_, err = sel.Set(ctx, hardware.ModeValidation)
	require.NoError(t, err)

	raw, err := mr.Get(testModeKey)
	require.NoError(t, err)
	var c Control
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, CommandMode, c.Command)
	assert.Equal(t, "validation", c.Mode)
	assert.True(t, c.Continuous)
	assert.Equal(t, "liveness", c.Workload)

	mode, err = pub.StoredMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, hardware.ModeValidation, mode)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package frames is the boundary to the delegated capture process. Frames
// arrive over Redis pub/sub as a fixed binary header followed by a JPEG.
package frames

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the length of the little-endian frame header:
// width uint32, height uint32, timestamp_ms uint64, frame_no uint32.
const HeaderSize = 20

var (
	ErrShortFrame   = errors.New("frame shorter than header")
	ErrEmptyPayload = errors.New("frame has no image payload")
)

// Frame is one decoded capture from the transport.
type Frame struct {
	Width       uint32
	Height      uint32
	TimestampMS uint64
	Number      uint32
	JPEG        []byte
}

// Time returns the capture timestamp.
func (f Frame) Time() time.Time {
	return time.UnixMilli(int64(f.TimestampMS))
}

// Empty reports whether f carries no image.
func (f Frame) Empty() bool { return len(f.JPEG) == 0 }

// Decode parses a wire frame. The returned JPEG aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	f := Frame{
		Width:       binary.LittleEndian.Uint32(b[0:4]),
		Height:      binary.LittleEndian.Uint32(b[4:8]),
		TimestampMS: binary.LittleEndian.Uint64(b[8:16]),
		Number:      binary.LittleEndian.Uint32(b[16:20]),
		JPEG:        b[HeaderSize:],
	}
	if len(f.JPEG) == 0 {
		return Frame{}, ErrEmptyPayload
	}
	return f, nil
}

// Encode produces the wire form of f.
func Encode(f Frame) []byte {
	b := make([]byte, HeaderSize+len(f.JPEG))
	binary.LittleEndian.PutUint32(b[0:4], f.Width)
	binary.LittleEndian.PutUint32(b[4:8], f.Height)
	binary.LittleEndian.PutUint64(b[8:16], f.TimestampMS)
	binary.LittleEndian.PutUint32(b[16:20], f.Number)
	copy(b[HeaderSize:], f.JPEG)
	return b
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
	"github.com/ManuGH/kiosk/internal/procgroup"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ErrReaderClosed is returned once the underlying stream has ended.
var ErrReaderClosed = errors.New("distance reader closed")

type lineSample struct {
	DistanceMM  int   `json:"distance_mm"`
	TimestampMS int64 `json:"timestamp_ms"`
}

// LineReader is a DistanceReader over newline-delimited JSON samples such as
// {"distance_mm":412,"timestamp_ms":1700000000000}. Only the newest unread
// sample is returned; older ones are superseded.
type LineReader struct {
	logger zerolog.Logger

	mu      sync.Mutex
	latest  Reading
	fresh   bool
	err     error
	done    chan struct{}
	skipped int
}

// NewLineReader starts scanning r in the background until EOF.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{
		logger: log.WithComponent("trigger"),
		done:   make(chan struct{}),
	}
	go lr.scan(r)
	return lr
}

func (lr *LineReader) scan(r io.Reader) {
	defer close(lr.done)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var s lineSample
		if err := json.Unmarshal(line, &s); err != nil {
			lr.mu.Lock()
			lr.skipped++
			n := lr.skipped
			lr.mu.Unlock()
			if n%50 == 1 {
				lr.logger.Warn().Err(err).Int("skipped", n).Msg("skipping malformed distance sample")
			}
			continue
		}
		at := time.Now()
		if s.TimestampMS > 0 {
			at = time.UnixMilli(s.TimestampMS)
		}
		lr.mu.Lock()
		lr.latest = Reading{DistanceMM: s.DistanceMM, At: at}
		lr.fresh = true
		lr.mu.Unlock()
	}

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	lr.mu.Lock()
	lr.err = fmt.Errorf("%w: %w", ErrReaderClosed, err)
	lr.mu.Unlock()
}

// ReadDistance implements DistanceReader. A sample still unread when the
// stream ends is returned before the close error.
func (lr *LineReader) ReadDistance(context.Context) (Reading, bool, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.fresh {
		lr.fresh = false
		return lr.latest, true, nil
	}
	if lr.err != nil {
		return Reading{}, false, lr.err
	}
	return Reading{}, false, nil
}

// Done is closed when the stream ends.
func (lr *LineReader) Done() <-chan struct{} { return lr.done }

// ProcessReader runs the ranging reader binary and parses its stdout.
type ProcessReader struct {
	*LineReader
	cmd    *exec.Cmd
	waitCh chan error
	once   sync.Once
	closed chan struct{}
	err    error
}

// StartProcessReader launches binary with args in its own process group.
func StartProcessReader(ctx context.Context, binary string, args ...string) (*ProcessReader, error) {
	cmd := exec.Command(binary, args...)
	procgroup.Set(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start distance reader %s: %w", binary, err)
	}
	logger := log.WithComponent("trigger")
	logger.Info().
		Str("binary", binary).
		Int("pid", cmd.Process.Pid).
		Msg("distance reader started")

	p := &ProcessReader{
		LineReader: NewLineReader(stdout),
		cmd:        cmd,
		waitCh:     make(chan error, 1),
		closed:     make(chan struct{}),
	}
	go func() {
		<-p.LineReader.Done()
		p.waitCh <- cmd.Wait()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.closed:
		}
	}()
	return p, nil
}

// Close terminates the reader process group.
func (p *ProcessReader) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.err = procgroup.Terminate(p.cmd, p.waitCh, 2*time.Second)
	})
	return p.err
}

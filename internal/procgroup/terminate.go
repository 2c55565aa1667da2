// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/kiosk/internal/log"
)

// Terminate sends SIGTERM to cmd's group and waits on waitCh (the result of
// cmd.Wait, owned by the caller). After grace it escalates to SIGKILL. The
// wait result is always drained and returned.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup")
	pid := cmd.Process.Pid

	if err := Kill(cmd, syscall.SIGTERM); err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("SIGTERM failed")
	}

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	logger.Warn().Int("pid", pid).Dur("grace", grace).Msg("process ignored SIGTERM, sending SIGKILL to group")
	if err := Kill(cmd, syscall.SIGKILL); err != nil {
		logger.Debug().Err(err).Int("pid", pid).Msg("SIGKILL failed")
	}
	return <-waitCh
}

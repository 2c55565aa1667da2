// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"errors"
	"fmt"
)

// Reason is the short machine-readable cause of a failed or cancelled session.
type Reason string

const (
	ReasonTokenRequestFailed  Reason = "token_request_failed"
	ReasonBridgeConnectFailed Reason = "bridge_connect_failed"
	ReasonAppTimeout          Reason = "app_timeout"
	ReasonCameraStartFailed   Reason = "camera_start_failed"
	ReasonModeChangeFailed    Reason = "mode_change_failed"
	ReasonNoFaceDetected      Reason = "no_face_detected"
	ReasonNoFramesCaptured    Reason = "no_frames_captured"
	ReasonUploadFailed        Reason = "upload_failed"
	ReasonAckTimeout          Reason = "ack_timeout"
	ReasonBackendError        Reason = "backend_error"
	ReasonPresenceLost        Reason = "presence_lost"
	ReasonReset               Reason = "reset"
	ReasonShutdown            Reason = "shutdown"
	ReasonInternal            Reason = "internal_error"
)

var reasonText = map[Reason]string{
	ReasonTokenRequestFailed:  "Could not reach the pairing service",
	ReasonBridgeConnectFailed: "Connection to the pairing service failed",
	ReasonAppTimeout:          "Mobile app did not connect in time",
	ReasonCameraStartFailed:   "Camera could not be started",
	ReasonModeChangeFailed:    "Camera could not switch to scanning mode",
	ReasonNoFaceDetected:      "No face detected",
	ReasonNoFramesCaptured:    "Liveness check did not pass",
	ReasonUploadFailed:        "Upload failed",
	ReasonAckTimeout:          "Backend did not confirm in time",
	ReasonBackendError:        "Backend reported an error",
	ReasonInternal:            "Unexpected error",
}

// Text is a human-readable message for the error screen.
func (r Reason) Text() string {
	if t, ok := reasonText[r]; ok {
		return t
	}
	return string(r)
}

// cancels reports whether r ends the session without an error screen.
func (r Reason) cancels() bool {
	return r == ReasonPresenceLost || r == ReasonReset || r == ReasonShutdown
}

// Failure is a session-terminating error with a typed reason.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(reason Reason, err error) error {
	return &Failure{Reason: reason, Err: err}
}

// ReasonOf extracts the reason from err, defaulting to internal_error.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonInternal
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import "github.com/ManuGH/kiosk/internal/fsm"

// Phase is the kiosk session phase shown to the visitor.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhasePairingRequest    Phase = "pairing_request"
	PhaseQRDisplay         Phase = "qr_display"
	PhaseWaitingActivation Phase = "waiting_activation"
	PhaseHumanDetect       Phase = "human_detect"
	PhaseStabilizing       Phase = "stabilizing"
	PhaseUploading         Phase = "uploading"
	PhaseWaitingAck        Phase = "waiting_ack"
	PhaseComplete          Phase = "complete"
	PhaseError             Phase = "error"
)

// Phases lists every phase in flow order.
var Phases = []Phase{
	PhaseIdle, PhasePairingRequest, PhaseQRDisplay, PhaseWaitingActivation, PhaseHumanDetect,
	PhaseStabilizing, PhaseUploading, PhaseWaitingAck, PhaseComplete, PhaseError,
}

func (p Phase) String() string { return string(p) }

// presenceGuarded reports whether losing presence in p arms the grace timer.
func (p Phase) presenceGuarded() bool {
	switch p {
	case PhasePairingRequest, PhaseQRDisplay, PhaseWaitingActivation, PhaseHumanDetect:
		return true
	}
	return false
}

// Event drives phase transitions.
type Event string

const (
	EventPresence        Event = "presence"
	EventTokenIssued     Event = "token_issued"
	EventAppAttached     Event = "app_attached"
	EventAppReady        Event = "app_ready"
	EventFramesCollected Event = "frames_collected"
	EventBestSelected    Event = "best_selected"
	EventUploaded        Event = "uploaded"
	EventAcked           Event = "acked"
	EventDisplayDone     Event = "display_done"
	EventFail            Event = "fail"
	EventCancel          Event = "cancel"
)

var transitions = []fsm.Transition[Phase, Event]{
	{From: PhaseIdle, Event: EventPresence, To: PhasePairingRequest},
	{From: PhasePairingRequest, Event: EventTokenIssued, To: PhaseQRDisplay},
	{From: PhaseQRDisplay, Event: EventAppAttached, To: PhaseWaitingActivation},
	{From: PhaseWaitingActivation, Event: EventAppReady, To: PhaseHumanDetect},
	{From: PhaseHumanDetect, Event: EventFramesCollected, To: PhaseStabilizing},
	{From: PhaseStabilizing, Event: EventBestSelected, To: PhaseUploading},
	{From: PhaseUploading, Event: EventUploaded, To: PhaseWaitingAck},
	{From: PhaseWaitingAck, Event: EventAcked, To: PhaseComplete},
	{From: PhaseComplete, Event: EventDisplayDone, To: PhaseIdle},
	{From: PhaseError, Event: EventDisplayDone, To: PhaseIdle},

	// Any session phase may fail or be cancelled.
	{From: "", Event: EventFail, To: PhaseError},
	{From: "", Event: EventCancel, To: PhaseIdle},
}

func newMachine() *fsm.Machine[Phase, Event] {
	m, err := fsm.New(PhaseIdle, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldRequestID  = "request_id"
	FieldPlatformID = "platform_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSource    = "source"
	FieldReason    = "reason"

	// Hardware fields
	FieldMode      = "mode"
	FieldOldCount  = "old_count"
	FieldNewCount  = "new_count"
	FieldAggregate = "aggregate"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldPhase    = "phase"

	// Sensor fields
	FieldDistanceMM = "distance_mm"
	FieldPresent    = "present"
)

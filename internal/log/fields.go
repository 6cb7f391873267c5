// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldEntityID  = "entity_id"
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldUserID    = "user_id"

	// Live TV fields
	FieldChannelID     = "channel_id"
	FieldChannelNumber = "channel_number"
	FieldProgramID     = "program_id"
	FieldSource        = "source"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldState    = "state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)

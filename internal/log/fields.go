// SPDX-License-Identifier: MIT
package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID      = "run_id"
	FieldSource     = "source"
	FieldVideoID    = "video_id"
	FieldPlaylistID = "playlist_id"
	FieldChannelID  = "channel_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldMode      = "mode"
	FieldAction    = "action"

	// Remote fields
	FieldEndpoint = "endpoint"
	FieldAttempt  = "attempt"
	FieldStatus   = "status"

	// Path fields
	FieldPath    = "path"
	FieldOldPath = "old_path"
	FieldNewPath = "new_path"

	// Progress fields
	FieldProcessed = "processed"
	FieldTotal     = "total"
)

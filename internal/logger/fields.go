package logger

import "log/slog"

// Standard field keys for structured logging across the muxer, lockdown,
// and XPC layers. Use these consistently so log lines stay greppable
// across packages.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyDeviceID   = "device_id"
	KeyOperation  = "operation"  // ReadBUID, Connect, StartSession, StartService, ...
	KeyTag        = "tag"        // usbmuxd request tag
	KeyChannelID  = "channel_id" // XPC channel (ROOT=1, REPLY=3)
	KeyMessageID  = "message_id" // XPC per-channel message id
	KeyState      = "state"      // lockdown connection state
	KeyDialect    = "dialect"    // binary or xml plist
	KeyFrameBytes = "frame_bytes"
	KeyDurationMs = "duration_ms"
	KeyErr        = "error"
)

func errAttr(err error) slog.Attr {
	return slog.String(KeyErr, err.Error())
}

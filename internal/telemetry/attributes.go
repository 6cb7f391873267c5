// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the embywatch application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Session attributes
	SessionIDKey          = "session.id"
	SessionUserKey        = "session.user"
	SessionDeviceKey      = "session.device"
	SessionStateKey       = "session.state"
	SessionContentTypeKey = "session.content_type"

	// Poll attributes
	PollKindKey     = "poll.kind"
	PollRunIDKey    = "poll.run_id"
	PollSessionsKey = "poll.sessions"
	PollDurationKey = "poll.duration_ms"

	// EPG attributes
	EPGChannelIDKey = "epg.channel_id"
	EPGProgramIDKey = "epg.program_id"
	EPGSourceKey    = "epg.source"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session-related span attributes.
func SessionAttributes(id, user, device string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if user != "" {
		attrs = append(attrs, attribute.String(SessionUserKey, user))
	}
	if device != "" {
		attrs = append(attrs, attribute.String(SessionDeviceKey, device))
	}
	return attrs
}

// PollAttributes creates poll-run span attributes.
func PollAttributes(kind, runID string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PollKindKey, kind),
		attribute.String(PollRunIDKey, runID),
		attribute.Int64(PollDurationKey, durationMS),
	}
}

// EPGAttributes creates EPG-lookup span attributes.
func EPGAttributes(channelID, programID, source string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if channelID != "" {
		attrs = append(attrs, attribute.String(EPGChannelIDKey, channelID))
	}
	if programID != "" {
		attrs = append(attrs, attribute.String(EPGProgramIDKey, programID))
	}
	if source != "" {
		attrs = append(attrs, attribute.String(EPGSourceKey, source))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

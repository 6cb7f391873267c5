// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "sessions", "http://emby.local/Sessions", 200)

	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if v, ok := findAttr(attrs, HTTPMethodKey); !ok || v.AsString() != "GET" {
		t.Errorf("expected method GET, got %v", v)
	}
	if v, ok := findAttr(attrs, HTTPStatusCodeKey); !ok || v.AsInt64() != 200 {
		t.Errorf("expected status 200, got %v", v)
	}
}

func TestSessionAttributesSkipsEmpty(t *testing.T) {
	attrs := SessionAttributes("s-1", "", "Living Room TV")

	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if _, ok := findAttr(attrs, SessionUserKey); ok {
		t.Error("expected empty user to be omitted")
	}
	if v, ok := findAttr(attrs, SessionDeviceKey); !ok || v.AsString() != "Living Room TV" {
		t.Errorf("expected device attribute, got %v", v)
	}
}

func TestPollAttributes(t *testing.T) {
	attrs := PollAttributes("sessions", "run-42", 125)

	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	if v, ok := findAttr(attrs, PollKindKey); !ok || v.AsString() != "sessions" {
		t.Errorf("expected poll kind, got %v", v)
	}
	if v, ok := findAttr(attrs, PollDurationKey); !ok || v.AsInt64() != 125 {
		t.Errorf("expected duration 125, got %v", v)
	}
}

func TestEPGAttributesSkipsEmpty(t *testing.T) {
	attrs := EPGAttributes("ch-1", "", "channel_search")

	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if _, ok := findAttr(attrs, EPGProgramIDKey); ok {
		t.Error("expected empty program id to be omitted")
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(nil, "timeout")

	if v, ok := findAttr(attrs, ErrorKey); !ok || !v.AsBool() {
		t.Errorf("expected error=true, got %v", v)
	}
	if v, ok := findAttr(attrs, ErrorTypeKey); !ok || v.AsString() != "timeout" {
		t.Errorf("expected error type timeout, got %v", v)
	}
}

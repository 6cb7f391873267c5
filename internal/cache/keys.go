// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/json"
	"time"
)

// Cache TTLs for upstream lookups. Guide entries change mid-program, server
// stats are near-live, library counts move slowly.
const (
	TTLProgram     = time.Minute
	TTLChannel     = time.Hour
	TTLServerStats = 30 * time.Second
	TTLRecordings  = time.Minute
	TTLLibrary     = 5 * time.Minute
)

// Fixed keys for the single-valued snapshots.
const (
	KeyServerStats = "stats:server"
	KeyRecordings  = "stats:recordings"
	KeyLibrary     = "stats:library"
)

// ProgramKey returns the cache key for a guide program lookup.
func ProgramKey(programID string) string {
	return "epg:program:" + programID
}

// AiringKey returns the cache key for the currently airing program of a channel.
func AiringKey(channelID string) string {
	return "epg:airing:" + channelID
}

// ChannelKey returns the cache key for a channel detail lookup.
func ChannelKey(channelID string) string {
	return "epg:channel:" + channelID
}

// Typed retrieves a value and decodes it into T. The memory backend stores
// values as-is and they type-assert directly; the Redis backend round-trips
// through JSON and yields generic maps, which are re-decoded into T.
func Typed[T any](c Cache, key string) (T, bool) {
	var zero T

	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}

	if v, ok := raw.(T); ok {
		return v, true
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Package bridge maps raw Emby sessions onto long-lived entities: it owns
// the reconciliation engine, the playback normalizer and the EPG scheduler.
package bridge

import (
	"time"
)

// State is the normalized playback state of an entity.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Recognized content types. Unrecognized item types pass through lower-cased,
// so ContentType stays a plain string.
const (
	ContentNone      = "none"
	ContentMovie     = "movie"
	ContentTVShow    = "tvshow"
	ContentMusic     = "music"
	ContentTVChannel = "tvchannel"
)

// Program lookup source tags.
const (
	SourceProgramID     = "program_id"
	SourceChannelSearch = "channel_search"
	SourceNone          = "none"
	SourceError         = "error"
)

// Playback is the normalized snapshot derived from one raw session. It is
// replaced wholesale on every reconciliation pass, never merged field-wise.
// Pointer fields distinguish "absent on the wire" from zero.
type Playback struct {
	State       State
	ContentType string

	ContentID string
	Title     string
	Series    string
	Artist    string
	Season    *int
	Episode   *int

	DurationSeconds    *float64
	PositionSeconds    *float64
	PositionCapturedAt *time.Time
	PlaybackPercent    *float64

	ImageURL string

	// Live TV identity, populated for tvchannel content only.
	ChannelID     string
	ChannelNumber string
	ProgramID     string

	// Presentation facts.
	PlayMethod          string
	Container           string
	VideoCodec          string
	VideoResolution     string
	VideoFramerate      *float64
	VideoBitrate        *int64
	AudioCodec          string
	AudioChannels       *int
	AudioBitrate        *int64
	Transcoding         bool
	TranscodeVideoCodec string
	TranscodeAudioCodec string
	TranscodeReasons    []string
}

// ProgramInfo is the asynchronously fetched guide snapshot for a live-TV
// entity. It has its own lifecycle: populated by the EPG scheduler after the
// playback snapshot was applied, cleared when the entity leaves live TV.
type ProgramInfo struct {
	ID            string
	Name          string
	SeriesName    string
	Overview      string
	StartDate     string
	EndDate       string
	ChannelID     string
	ChannelNumber string
	ChannelName   string
	ImageURL      string
	FetchedAt     time.Time
	Source        string
}

// Entity is one long-lived session entity. Created on first sighting of a
// session id, mutated in place afterwards, marked unavailable when its id
// vanishes from a poll. Never deleted.
type Entity struct {
	// ID is the stable display identifier, assigned at creation.
	ID string
	// SessionID is the upstream session id this entity tracks.
	SessionID string
	// Name is the human-readable label, assigned at creation.
	Name string

	UserID     string
	UserName   string
	DeviceName string
	Client     string

	Available bool
	Playback  Playback
	Program   *ProgramInfo
	UpdatedAt time.Time
}

// Attributes returns the compacted attribute map exposed by the API and the
// state export.
func (e *Entity) Attributes() map[string]any {
	attrs := e.Playback.attributes()

	attrs["user"] = e.UserName
	attrs["device"] = e.DeviceName
	attrs["client"] = e.Client

	if p := e.Program; p != nil {
		attrs["program_id"] = p.ID
		attrs["program_name"] = p.Name
		attrs["program_series"] = p.SeriesName
		attrs["program_overview"] = p.Overview
		attrs["program_start"] = p.StartDate
		attrs["program_end"] = p.EndDate
		attrs["program_channel_name"] = p.ChannelName
		attrs["program_image_url"] = p.ImageURL
		attrs["program_source"] = p.Source
		if !p.FetchedAt.IsZero() {
			attrs["program_fetched_at"] = p.FetchedAt.UTC().Format(time.RFC3339)
		}
		// Guide data may carry a channel number the session did not.
		if p.ChannelNumber != "" {
			attrs["channel_number"] = p.ChannelNumber
		}
	}

	return Compact(attrs)
}

func (p *Playback) attributes() map[string]any {
	attrs := map[string]any{
		"state":        string(p.State),
		"content_type": p.ContentType,
		"content_id":   p.ContentID,
		"title":        p.Title,
		"series":       p.Series,
		"artist":       p.Artist,
		"image_url":    p.ImageURL,

		"channel_id":     p.ChannelID,
		"channel_number": p.ChannelNumber,
		"program_id":     p.ProgramID,

		"play_method":           p.PlayMethod,
		"container":             p.Container,
		"video_codec":           p.VideoCodec,
		"video_resolution":      p.VideoResolution,
		"audio_codec":           p.AudioCodec,
		"transcoding":           p.Transcoding,
		"transcode_video_codec": p.TranscodeVideoCodec,
		"transcode_audio_codec": p.TranscodeAudioCodec,
		"transcode_reasons":     p.TranscodeReasons,
	}

	putInt(attrs, "season", p.Season)
	putInt(attrs, "episode", p.Episode)
	putInt(attrs, "audio_channels", p.AudioChannels)
	putInt64(attrs, "video_bitrate", p.VideoBitrate)
	putInt64(attrs, "audio_bitrate", p.AudioBitrate)
	putFloat(attrs, "duration_seconds", p.DurationSeconds)
	putFloat(attrs, "position_seconds", p.PositionSeconds)
	putFloat(attrs, "playback_percent", p.PlaybackPercent)
	putFloat(attrs, "video_framerate", p.VideoFramerate)
	if p.PositionCapturedAt != nil {
		attrs["position_captured_at"] = p.PositionCapturedAt.UTC().Format(time.RFC3339)
	}

	return attrs
}

func putInt(attrs map[string]any, key string, v *int) {
	if v != nil {
		attrs[key] = *v
	}
}

func putInt64(attrs map[string]any, key string, v *int64) {
	if v != nil {
		attrs[key] = *v
	}
}

func putFloat(attrs map[string]any, key string, v *float64) {
	if v != nil {
		attrs[key] = *v
	}
}

// Compact drops entries whose value carries no information: nil, empty or
// zero values vanish, matching attribute-style output where absence means
// "not applicable". The structural keys state and content_type always
// survive.
func Compact(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k == "state" || k == "content_type" || !emptyValue(v) {
			out[k] = v
		}
	}
	return out
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

package bridge

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ManuGH/embywatch/internal/emby"
)

// ticksPerSecond is Emby's fixed tick rate for positions and runtimes.
const ticksPerSecond = 10_000_000

// ImageURLer builds primary-image URLs. Satisfied by *emby.Client.
type ImageURLer interface {
	ItemImageURL(itemID string) string
}

// Normalizer turns one raw session into a Playback snapshot. Pure aside from
// the injected clock; safe for concurrent use.
type Normalizer struct {
	images ImageURLer
	now    func() time.Time
}

// NewNormalizer creates a normalizer. images may be nil (no image URLs);
// now defaults to time.Now.
func NewNormalizer(images ImageURLer, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{images: images, now: now}
}

// Snapshot derives the normalized playback snapshot for a session. Absent
// wire fields stay absent in the output; they never degrade to zero.
func (n *Normalizer) Snapshot(s emby.Session) Playback {
	item := s.NowPlayingItem
	ps := s.PlayState

	pb := Playback{
		State:       deriveState(ps, item),
		ContentType: mapContentType(item),
	}

	if item != nil {
		pb.ContentID = item.Id
		pb.Title = item.Name
		pb.Series = item.SeriesName
		pb.Artist = firstNonEmpty(item.AlbumArtist, item.Artist)
		pb.Season = cloneInt(item.ParentIndexNumber)
		pb.Episode = cloneInt(item.IndexNumber)
		pb.DurationSeconds = ticksToSeconds(item.RunTimeTicks)
		pb.Container = item.Container
		if n.images != nil && item.Id != "" {
			pb.ImageURL = n.images.ItemImageURL(item.Id)
		}
		applyStreams(&pb, item.MediaStreams)
	}

	if ps != nil {
		pb.PositionSeconds = ticksToSeconds(ps.PositionTicks)
	}
	// The position is a point sample, not a live counter. Consumers
	// extrapolate from this timestamp.
	if pb.PositionSeconds != nil {
		at := n.now()
		pb.PositionCapturedAt = &at
	}
	if pb.PositionSeconds != nil && pb.DurationSeconds != nil && *pb.DurationSeconds > 0 {
		pct := math.Round(*pb.PositionSeconds / *pb.DurationSeconds * 1000) / 10
		pb.PlaybackPercent = &pct
	}

	applyPlayMethod(&pb, s, ps)

	if pb.ContentType == ContentTVChannel && item != nil {
		pb.ChannelID = firstNonEmpty(item.ChannelId, item.Id)
		pb.ChannelNumber = firstNonEmpty(string(item.ChannelNumber), string(item.Number))
		pb.ProgramID = firstNonEmpty(
			item.ProgramId,
			refID(s.NowPlayingProgram),
			refID(item.CurrentProgram),
			s.NowPlayingProgramId,
		)
	}

	return pb
}

// deriveState applies the state priority: an explicit pause flag beats every
// playing inference, and a present now-playing item implies playing even
// when the flags are missing.
func deriveState(ps *emby.PlayState, item *emby.NowPlayingItem) State {
	if ps != nil && ps.IsPaused {
		return StatePaused
	}
	if ps != nil && (ps.IsPlaying || ps.PlaybackStatus == "Playing") {
		return StatePlaying
	}
	if item != nil {
		return StatePlaying
	}
	return StateIdle
}

// mapContentType classifies the raw item type into the fixed taxonomy.
// Unrecognized non-empty types pass through lower-cased.
func mapContentType(item *emby.NowPlayingItem) string {
	if item == nil {
		return ContentNone
	}
	t := strings.ToLower(strings.TrimSpace(item.Type))
	switch t {
	case "":
		return ContentNone
	case "episode":
		return ContentTVShow
	case "movie":
		return ContentMovie
	case "audio", "audiofile", "music", "musicvideo":
		return ContentMusic
	case "livetvchannel", "tvchannel", "program":
		return ContentTVChannel
	default:
		return t
	}
}

// ticksToSeconds converts server ticks to seconds. Absent ticks stay
// absent, never zero.
func ticksToSeconds(ticks *int64) *float64 {
	if ticks == nil {
		return nil
	}
	s := float64(*ticks) / ticksPerSecond
	return &s
}

// applyStreams extracts presentation facts from the first video and first
// audio stream.
func applyStreams(pb *Playback, streams []emby.MediaStream) {
	var haveVideo, haveAudio bool
	for i := range streams {
		st := &streams[i]
		switch {
		case !haveVideo && strings.EqualFold(st.Type, "Video"):
			haveVideo = true
			pb.VideoCodec = strings.ToLower(st.Codec)
			if st.Width != nil && st.Height != nil {
				pb.VideoResolution = fmt.Sprintf("%dx%d", *st.Width, *st.Height)
			}
			pb.VideoFramerate = cloneFloat(st.RealFrameRate)
			pb.VideoBitrate = cloneInt64(st.BitRate)
		case !haveAudio && strings.EqualFold(st.Type, "Audio"):
			haveAudio = true
			pb.AudioCodec = strings.ToLower(st.Codec)
			pb.AudioChannels = cloneInt(st.Channels)
			pb.AudioBitrate = cloneInt64(st.BitRate)
		}
	}
}

// applyPlayMethod resolves the play method and transcoding facts. The play
// state wins over the session-level field; transcoding detail comes from
// whichever TranscodingInfo block is present, with the flat play-state
// fields as last resort.
func applyPlayMethod(pb *Playback, s emby.Session, ps *emby.PlayState) {
	if ps != nil {
		pb.PlayMethod = ps.PlayMethod
	}
	if pb.PlayMethod == "" {
		pb.PlayMethod = s.PlayMethod
	}
	pb.Transcoding = strings.EqualFold(pb.PlayMethod, "Transcode")

	ti := s.TranscodingInfo
	if ti == nil && ps != nil {
		ti = ps.TranscodingInfo
	}
	switch {
	case ti != nil:
		pb.TranscodeVideoCodec = strings.ToLower(ti.VideoCodec)
		pb.TranscodeAudioCodec = strings.ToLower(ti.AudioCodec)
		pb.TranscodeReasons = []string(ti.TranscodingReason)
	case ps != nil:
		pb.TranscodeVideoCodec = strings.ToLower(ps.TranscodingVideoCodec)
		pb.TranscodeAudioCodec = strings.ToLower(ps.TranscodingAudioCodec)
		pb.TranscodeReasons = []string(ps.TranscodingReason)
	}
}

func refID(p *emby.ProgramRef) string {
	if p == nil {
		return ""
	}
	return p.Id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

package stats

import (
	"math"

	"github.com/ManuGH/embywatch/internal/emby"
)

// StreamBandwidth is the bitrate breakdown of one active stream.
type StreamBandwidth struct {
	SessionID    string  `json:"session_id"`
	User         string  `json:"user"`
	Title        string  `json:"title"`
	VideoBitrate int64   `json:"video_bitrate"`
	AudioBitrate int64   `json:"audio_bitrate"`
	TotalBitrate int64   `json:"total_bitrate"`
	MBps         float64 `json:"mbps"`
}

// BandwidthReport sums the outbound bandwidth of all active streams.
type BandwidthReport struct {
	TotalBitrate int64             `json:"total_bitrate"`
	TotalMBps    float64           `json:"total_mbps"`
	Streams      []StreamBandwidth `json:"streams"`
}

// Bandwidth estimates the per-stream and total bandwidth of the session
// list. Bitrates come from the play state first, the transcoding block
// second and the session-level hints last; when neither video nor audio is
// known the combined target bitrate fills in.
func Bandwidth(sessions []emby.Session) BandwidthReport {
	report := BandwidthReport{Streams: []StreamBandwidth{}}

	for i := range sessions {
		sess := &sessions[i]
		if sess.NowPlayingItem == nil {
			continue
		}

		video := firstBitrate(videoBitrates(sess)...)
		audio := firstBitrate(audioBitrates(sess)...)
		total := video + audio
		if total == 0 {
			total = firstBitrate(combinedBitrates(sess)...)
		}

		report.Streams = append(report.Streams, StreamBandwidth{
			SessionID:    sess.Key(),
			User:         sess.UserName,
			Title:        sess.NowPlayingItem.Name,
			VideoBitrate: video,
			AudioBitrate: audio,
			TotalBitrate: total,
			MBps:         toMBps(total),
		})
		report.TotalBitrate += total
	}

	report.TotalMBps = toMBps(report.TotalBitrate)
	return report
}

// toMBps converts bits per second to megabytes per second, rounded to two
// decimals.
func toMBps(bitrate int64) float64 {
	mbps := float64(bitrate) / 8 / 1024 / 1024
	return math.Round(mbps*100) / 100
}

func firstBitrate(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func videoBitrates(s *emby.Session) []int64 {
	out := make([]int64, 0, 3)
	if s.PlayState != nil {
		out = append(out, int64(s.PlayState.VideoBitrate))
	}
	if ti := transcodingInfo(s); ti != nil {
		out = append(out, int64(ti.VideoBitrate))
	}
	return append(out, int64(s.VideoBitrate))
}

func audioBitrates(s *emby.Session) []int64 {
	out := make([]int64, 0, 3)
	if s.PlayState != nil {
		out = append(out, int64(s.PlayState.AudioBitrate))
	}
	if ti := transcodingInfo(s); ti != nil {
		out = append(out, int64(ti.AudioBitrate))
	}
	return append(out, int64(s.AudioBitrate))
}

func combinedBitrates(s *emby.Session) []int64 {
	out := make([]int64, 0, 3)
	if s.PlayState != nil {
		out = append(out, int64(s.PlayState.Bitrate))
	}
	if ti := transcodingInfo(s); ti != nil {
		out = append(out, int64(ti.Bitrate))
	}
	return append(out, int64(s.Bitrate))
}

// transcodingInfo returns whichever transcoding block the session carries,
// the session-level one preferred.
func transcodingInfo(s *emby.Session) *emby.TranscodingInfo {
	if s.TranscodingInfo != nil {
		return s.TranscodingInfo
	}
	if s.PlayState != nil {
		return s.PlayState.TranscodingInfo
	}
	return nil
}

package stats

import (
	"math"
	"strings"

	"github.com/ManuGH/embywatch/internal/emby"
)

// TranscodingSession describes one transcoded stream: what the source
// looks like, what the server turns it into and why.
type TranscodingSession struct {
	SessionID        string   `json:"session_id"`
	User             string   `json:"user"`
	Title            string   `json:"title"`
	SourceVideoCodec string   `json:"source_video_codec,omitempty"`
	SourceAudioCodec string   `json:"source_audio_codec,omitempty"`
	SourceContainer  string   `json:"source_container,omitempty"`
	TargetVideoCodec string   `json:"target_video_codec,omitempty"`
	TargetAudioCodec string   `json:"target_audio_codec,omitempty"`
	TargetContainer  string   `json:"target_container,omitempty"`
	Reasons          []string `json:"reasons"`
}

// TranscodingReport summarizes how much of the active load is transcoding.
type TranscodingReport struct {
	ActiveStreams int                  `json:"active_streams"`
	Transcoding   int                  `json:"transcoding"`
	Percent       float64              `json:"percent"`
	Sessions      []TranscodingSession `json:"sessions"`
}

// Transcoding reports the transcoding share of the active streams with a
// per-session format breakdown.
func Transcoding(sessions []emby.Session) TranscodingReport {
	report := TranscodingReport{Sessions: []TranscodingSession{}}

	for i := range sessions {
		sess := &sessions[i]
		if sess.NowPlayingItem == nil {
			continue
		}
		report.ActiveStreams++
		if !isTranscoding(sess) {
			continue
		}
		report.Transcoding++

		ts := TranscodingSession{
			SessionID:       sess.Key(),
			User:            sess.UserName,
			Title:           sess.NowPlayingItem.Name,
			SourceContainer: strings.ToLower(sess.NowPlayingItem.Container),
		}
		for j := range sess.NowPlayingItem.MediaStreams {
			st := &sess.NowPlayingItem.MediaStreams[j]
			switch {
			case ts.SourceVideoCodec == "" && strings.EqualFold(st.Type, "Video"):
				ts.SourceVideoCodec = strings.ToLower(st.Codec)
			case ts.SourceAudioCodec == "" && strings.EqualFold(st.Type, "Audio"):
				ts.SourceAudioCodec = strings.ToLower(st.Codec)
			}
		}

		var isHLS bool
		var serverReasons []string
		if ti := transcodingInfo(sess); ti != nil {
			ts.TargetVideoCodec = strings.ToLower(ti.VideoCodec)
			ts.TargetAudioCodec = strings.ToLower(ti.AudioCodec)
			ts.TargetContainer = strings.ToLower(ti.Container)
			isHLS = ti.IsHls
			serverReasons = ti.TranscodingReason
		} else if ps := sess.PlayState; ps != nil {
			ts.TargetVideoCodec = strings.ToLower(ps.TranscodingVideoCodec)
			ts.TargetAudioCodec = strings.ToLower(ps.TranscodingAudioCodec)
			serverReasons = ps.TranscodingReason
		}
		ts.Reasons = transcodeReasons(ts, isHLS, serverReasons)

		report.Sessions = append(report.Sessions, ts)
	}

	if report.ActiveStreams > 0 {
		pct := float64(report.Transcoding) / float64(report.ActiveStreams) * 100
		report.Percent = math.Round(pct*10) / 10
	}
	return report
}

// transcodeReasons builds the human-readable reason list: codec and
// container changes derived from the formats, HLS packaging, then any
// reasons the server itself reported. An empty list degrades to a generic
// compatibility note so the report never shows a transcode without cause.
func transcodeReasons(ts TranscodingSession, isHLS bool, serverReasons []string) []string {
	var out []string

	if ts.TargetVideoCodec != "" && ts.SourceVideoCodec != "" && ts.TargetVideoCodec != ts.SourceVideoCodec {
		out = append(out, "video codec "+ts.SourceVideoCodec+" -> "+ts.TargetVideoCodec)
	}
	if ts.TargetAudioCodec != "" && ts.SourceAudioCodec != "" && ts.TargetAudioCodec != ts.SourceAudioCodec {
		out = append(out, "audio codec "+ts.SourceAudioCodec+" -> "+ts.TargetAudioCodec)
	}
	if ts.TargetContainer != "" && ts.SourceContainer != "" && ts.TargetContainer != ts.SourceContainer {
		out = append(out, "container "+ts.SourceContainer+" -> "+ts.TargetContainer)
	}
	if isHLS {
		out = append(out, "hls packaging")
	}
	for _, r := range serverReasons {
		if r != "" {
			out = append(out, r)
		}
	}

	if len(out) == 0 {
		out = append(out, "client compatibility")
	}
	return out
}

// isTranscoding mirrors the play-method detection of the normalizer: the
// play state wins over the session-level field.
func isTranscoding(s *emby.Session) bool {
	method := s.PlayMethod
	if s.PlayState != nil && s.PlayState.PlayMethod != "" {
		method = s.PlayState.PlayMethod
	}
	return strings.EqualFold(method, "Transcode")
}

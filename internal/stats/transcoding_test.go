package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/embywatch/internal/emby"
)

func transcodingSession(id string) emby.Session {
	return emby.Session{
		Id:       id,
		UserName: "anna",
		NowPlayingItem: &emby.NowPlayingItem{
			Name:      "Film",
			Container: "mkv",
			MediaStreams: []emby.MediaStream{
				{Type: "Subtitle", Codec: "srt"},
				{Type: "Video", Codec: "HEVC"},
				{Type: "Audio", Codec: "DTS"},
			},
		},
		PlayState: &emby.PlayState{PlayMethod: "Transcode"},
	}
}

func TestTranscodingReport(t *testing.T) {
	direct := activeSession("s2", "ben", "Film B")
	direct.PlayState = &emby.PlayState{PlayMethod: "DirectPlay"}

	sess := transcodingSession("s1")
	sess.TranscodingInfo = &emby.TranscodingInfo{
		VideoCodec:        "H264",
		AudioCodec:        "AAC",
		Container:         "ts",
		IsHls:             true,
		TranscodingReason: emby.StringList{"ContainerBitrateExceedsLimit"},
	}

	got := Transcoding([]emby.Session{sess, direct, idleSession("s3", "cara")})

	assert.Equal(t, 2, got.ActiveStreams)
	assert.Equal(t, 1, got.Transcoding)
	assert.Equal(t, 50.0, got.Percent)

	require.Len(t, got.Sessions, 1)
	want := TranscodingSession{
		SessionID:        "s1",
		User:             "anna",
		Title:            "Film",
		SourceVideoCodec: "hevc",
		SourceAudioCodec: "dts",
		SourceContainer:  "mkv",
		TargetVideoCodec: "h264",
		TargetAudioCodec: "aac",
		TargetContainer:  "ts",
		Reasons: []string{
			"video codec hevc -> h264",
			"audio codec dts -> aac",
			"container mkv -> ts",
			"hls packaging",
			"ContainerBitrateExceedsLimit",
		},
	}
	if diff := cmp.Diff(want, got.Sessions[0]); diff != "" {
		t.Fatalf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestTranscodingFlatPlayStateFallback(t *testing.T) {
	// Older servers report the target formats directly on PlayState
	// without a TranscodingInfo block.
	sess := transcodingSession("s1")
	sess.PlayState.TranscodingVideoCodec = "H264"
	sess.PlayState.TranscodingAudioCodec = "AAC"
	sess.PlayState.TranscodingReason = emby.StringList{"VideoCodecNotSupported"}

	got := Transcoding([]emby.Session{sess})

	require.Len(t, got.Sessions, 1)
	ts := got.Sessions[0]
	assert.Equal(t, "h264", ts.TargetVideoCodec)
	assert.Equal(t, "aac", ts.TargetAudioCodec)
	assert.Empty(t, ts.TargetContainer)
	assert.Equal(t, []string{
		"video codec hevc -> h264",
		"audio codec dts -> aac",
		"VideoCodecNotSupported",
	}, ts.Reasons)
}

func TestTranscodingGenericReason(t *testing.T) {
	sess := emby.Session{
		Id:             "s1",
		NowPlayingItem: &emby.NowPlayingItem{Name: "Film"},
		PlayState:      &emby.PlayState{PlayMethod: "Transcode"},
	}

	got := Transcoding([]emby.Session{sess})

	require.Len(t, got.Sessions, 1)
	assert.Equal(t, []string{"client compatibility"}, got.Sessions[0].Reasons)
}

func TestTranscodingUnchangedFormatsFallBackToGenericReason(t *testing.T) {
	sess := transcodingSession("s1")
	sess.TranscodingInfo = &emby.TranscodingInfo{
		VideoCodec: "HEVC",
		AudioCodec: "DTS",
		Container:  "mkv",
	}

	got := Transcoding([]emby.Session{sess})

	require.Len(t, got.Sessions, 1)
	assert.Equal(t, []string{"client compatibility"}, got.Sessions[0].Reasons)
}

func TestTranscodingDetection(t *testing.T) {
	tests := []struct {
		name    string
		session emby.Session
		want    bool
	}{
		{
			name: "play_state_method",
			session: emby.Session{
				NowPlayingItem: &emby.NowPlayingItem{},
				PlayState:      &emby.PlayState{PlayMethod: "Transcode"},
			},
			want: true,
		},
		{
			name: "session_method",
			session: emby.Session{
				NowPlayingItem: &emby.NowPlayingItem{},
				PlayMethod:     "Transcode",
			},
			want: true,
		},
		{
			name: "play_state_overrides_session",
			session: emby.Session{
				NowPlayingItem: &emby.NowPlayingItem{},
				PlayMethod:     "Transcode",
				PlayState:      &emby.PlayState{PlayMethod: "DirectStream"},
			},
			want: false,
		},
		{
			name: "case_insensitive",
			session: emby.Session{
				NowPlayingItem: &emby.NowPlayingItem{},
				PlayMethod:     "transcode",
			},
			want: true,
		},
		{
			name:    "no_method",
			session: emby.Session{NowPlayingItem: &emby.NowPlayingItem{}},
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transcoding([]emby.Session{tt.session})
			assert.Equal(t, tt.want, got.Transcoding == 1)
		})
	}
}

func TestTranscodingPercentRounding(t *testing.T) {
	sessions := []emby.Session{
		transcodingSession("s1"),
		activeSession("s2", "ben", "Film B"),
		activeSession("s3", "cara", "Film C"),
	}

	got := Transcoding(sessions)

	assert.Equal(t, 33.3, got.Percent)
}

package emby

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// StringOrNumber handles JSON fields that can be "209" or 209.
// Emby emits channel numbers either way depending on server version.
type StringOrNumber string

func (s *StringOrNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}

	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = StringOrNumber(v)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		// Unparseable values degrade to empty, a single odd field must not
		// fail the whole session list.
		*s = ""
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*s = StringOrNumber(strconv.FormatInt(i, 10))
		return nil
	}
	*s = StringOrNumber(n.String())
	return nil
}

// Int64OrString handles bitrate-style fields that arrive as 123 or "123".
// Garbage coerces to zero instead of failing the decode.
type Int64OrString int64

func (v *Int64OrString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*v = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*v = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*v = 0
			return nil
		}
		*v = Int64OrString(i)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		*v = 0
		return nil
	}
	*v = Int64OrString(int64(f))
	return nil
}

// StringList accepts both a bare string and an array of strings.
// TranscodingReason(s) appears in both shapes across Emby versions.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// Session is one entry of the /Sessions response. Every field is optional on
// the wire; pointer types mark the ones where absence must stay observable.
type Session struct {
	Id                  string           `json:"Id"`
	SessionId           string           `json:"SessionId"` // legacy alias for Id
	UserId              string           `json:"UserId"`
	UserName            string           `json:"UserName"`
	DeviceName          string           `json:"DeviceName"`
	Client              string           `json:"Client"`
	Application         string           `json:"Application"`
	PlayMethod          string           `json:"PlayMethod"`
	NowPlayingItem      *NowPlayingItem  `json:"NowPlayingItem"`
	PlayState           *PlayState       `json:"PlayState"`
	TranscodingInfo     *TranscodingInfo `json:"TranscodingInfo"`
	NowPlayingProgram   *ProgramRef      `json:"NowPlayingProgram"`
	NowPlayingProgramId string           `json:"NowPlayingProgramId"`
	VideoBitrate        Int64OrString    `json:"VideoBitrate"`
	AudioBitrate        Int64OrString    `json:"AudioBitrate"`
	Bitrate             Int64OrString    `json:"Bitrate"`
}

// Key returns the session identifier, falling back to the legacy field.
func (s *Session) Key() string {
	if s.Id != "" {
		return s.Id
	}
	return s.SessionId
}

// NowPlayingItem carries the media metadata of a session.
type NowPlayingItem struct {
	Id                string         `json:"Id"`
	Type              string         `json:"Type"`
	Name              string         `json:"Name"`
	SeriesName        string         `json:"SeriesName"`
	AlbumArtist       string         `json:"AlbumArtist"`
	Artist            string         `json:"Artist"`
	ParentIndexNumber *int           `json:"ParentIndexNumber"`
	IndexNumber       *int           `json:"IndexNumber"`
	RunTimeTicks      *int64         `json:"RunTimeTicks"`
	Container         string         `json:"Container"`
	MediaStreams      []MediaStream  `json:"MediaStreams"`
	ChannelId         string         `json:"ChannelId"`
	ChannelNumber     StringOrNumber `json:"ChannelNumber"`
	Number            StringOrNumber `json:"Number"`
	ProgramId         string         `json:"ProgramId"`
	CurrentProgram    *ProgramRef    `json:"CurrentProgram"`
}

// ProgramRef is a nested program reference; only the id matters here.
type ProgramRef struct {
	Id string `json:"Id"`
}

// PlayState mirrors the PlayState object of a session.
type PlayState struct {
	IsPaused              bool             `json:"IsPaused"`
	IsPlaying             bool             `json:"IsPlaying"`
	PlaybackStatus        string           `json:"PlaybackStatus"`
	PositionTicks         *int64           `json:"PositionTicks"`
	PlayMethod            string           `json:"PlayMethod"`
	TranscodingVideoCodec string           `json:"TranscodingVideoCodec"`
	TranscodingAudioCodec string           `json:"TranscodingAudioCodec"`
	TranscodingReason     StringList       `json:"TranscodingReason"`
	VideoResolution       StringOrNumber   `json:"VideoResolution"`
	VideoBitrate          Int64OrString    `json:"VideoBitrate"`
	AudioBitrate          Int64OrString    `json:"AudioBitrate"`
	Bitrate               Int64OrString    `json:"Bitrate"`
	TranscodingInfo       *TranscodingInfo `json:"TranscodingInfo"`
}

// TranscodingInfo appears either on the session or nested in PlayState.
type TranscodingInfo struct {
	VideoCodec        string        `json:"VideoCodec"`
	AudioCodec        string        `json:"AudioCodec"`
	Container         string        `json:"Container"`
	IsHls             bool          `json:"IsHls"`
	Width             *int          `json:"Width"`
	Height            *int          `json:"Height"`
	VideoBitrate      Int64OrString `json:"VideoBitrate"`
	AudioBitrate      Int64OrString `json:"AudioBitrate"`
	Bitrate           Int64OrString `json:"Bitrate"`
	TranscodingReason StringList    `json:"TranscodingReason"`
}

// MediaStream is one stream of a media source.
type MediaStream struct {
	Type          string   `json:"Type"`
	Codec         string   `json:"Codec"`
	Width         *int     `json:"Width"`
	Height        *int     `json:"Height"`
	BitRate       *int64   `json:"BitRate"`
	Channels      *int     `json:"Channels"`
	SampleRate    *int     `json:"SampleRate"`
	Language      string   `json:"Language"`
	RealFrameRate *float64 `json:"RealFrameRate"`
	AspectRatio   string   `json:"AspectRatio"`
}

// Program is a live-TV guide entry.
type Program struct {
	Id                 string         `json:"Id"`
	Name               string         `json:"Name"`
	Overview           string         `json:"Overview"`
	StartDate          string         `json:"StartDate"`
	EndDate            string         `json:"EndDate"`
	Genres             []string       `json:"Genres"`
	SeriesName         string         `json:"SeriesName"`
	SeriesTitle        string         `json:"SeriesTitle"`
	ProgramSeriesTitle string         `json:"ProgramSeriesTitle"`
	ShowName           string         `json:"ShowName"`
	Program            string         `json:"Program"`
	SeasonNumber       *int           `json:"SeasonNumber"`
	EpisodeNumber      *int           `json:"EpisodeNumber"`
	ChannelId          string         `json:"ChannelId"`
	ChannelName        string         `json:"ChannelName"`
	ChannelNumber      StringOrNumber `json:"ChannelNumber"`
	Number             StringOrNumber `json:"Number"`
}

// SeriesLabel returns the best available series-ish title of a program.
func (p *Program) SeriesLabel() string {
	if p == nil {
		return ""
	}
	for _, v := range []string{p.SeriesName, p.SeriesTitle, p.ProgramSeriesTitle, p.ShowName, p.Program, p.Name} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Channel is a live-TV channel detail record.
type Channel struct {
	Id            string         `json:"Id"`
	Name          string         `json:"Name"`
	Number        StringOrNumber `json:"Number"`
	ChannelNumber StringOrNumber `json:"ChannelNumber"`
}

// User is an Emby user account.
type User struct {
	Id     string `json:"Id"`
	Name   string `json:"Name"`
	Policy struct {
		IsAdministrator bool `json:"IsAdministrator"`
	} `json:"Policy"`
}

// SystemInfo is the /System/Info response subset the daemon uses.
type SystemInfo struct {
	Id                 string `json:"Id"`
	ServerName         string `json:"ServerName"`
	Version            string `json:"Version"`
	OperatingSystem    string `json:"OperatingSystem"`
	SystemArchitecture string `json:"SystemArchitecture"`
}

// ActivityEntry is one /System/ActivityLog/Entries item.
type ActivityEntry struct {
	Id       int64  `json:"Id"`
	Name     string `json:"Name"`
	Type     string `json:"Type"`
	Date     string `json:"Date"`
	UserName string `json:"UserName"`
	Severity string `json:"Severity"`
}

// Item is a raw library item as returned by the /Users/{id}/Items family.
type Item struct {
	Id                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	SeriesName        string            `json:"SeriesName"`
	ParentIndexNumber *int              `json:"ParentIndexNumber"`
	SeasonNumber      *int              `json:"SeasonNumber"`
	IndexNumber       *int              `json:"IndexNumber"`
	EpisodeNumber     *int              `json:"EpisodeNumber"`
	PremiereDate      string            `json:"PremiereDate"`
	ReleaseDate       string            `json:"ReleaseDate"`
	DateCreated       string            `json:"DateCreated"`
	RunTimeTicks      *int64            `json:"RunTimeTicks"`
	CommunityRating   *float64          `json:"CommunityRating"`
	ProviderIds       map[string]string `json:"ProviderIds"`
	Genres            []string          `json:"Genres"`
	Taglines          []string          `json:"Taglines"`
	OriginalTitle     string            `json:"OriginalTitle"`
	Container         string            `json:"Container"`
	MediaStreams      []MediaStream     `json:"MediaStreams"`
}

// ItemsPage wraps list endpoints that return {"Items": [...]}.
type ItemsPage[T any] struct {
	Items            []T `json:"Items"`
	TotalRecordCount int `json:"TotalRecordCount"`
}

// ItemCounts is the /Items/Counts response.
type ItemCounts struct {
	MovieCount     int `json:"MovieCount"`
	SeriesCount    int `json:"SeriesCount"`
	EpisodeCount   int `json:"EpisodeCount"`
	SongCount      int `json:"SongCount"`
	BookCount      int `json:"BookCount"`
	AudioBookCount int `json:"AudioBookCount"`
	TrailerCount   int `json:"TrailerCount"`
	BoxSetCount    int `json:"BoxSetCount"`
	PlaylistCount  int `json:"PlaylistCount"`
}

// View is one entry of /Users/{id}/Views.
type View struct {
	Id             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
}

// Timer is a live-TV recording timer.
type Timer struct {
	Id          string        `json:"Id"`
	Name        string        `json:"Name"`
	ProgramName string        `json:"ProgramName"`
	ChannelId   string        `json:"ChannelId"`
	ChannelName string        `json:"ChannelName"`
	Status      string        `json:"Status"`
	StartDate   string        `json:"StartDate"`
	EndDate     string        `json:"EndDate"`
	ProgramInfo *TimerProgram `json:"ProgramInfo"`
}

// TimerProgram is the program block nested in a timer.
type TimerProgram struct {
	Name        string `json:"Name"`
	ChannelName string `json:"ChannelName"`
	StartDate   string `json:"StartDate"`
	EndDate     string `json:"EndDate"`
}

// SeriesTimer is a recurring recording rule.
type SeriesTimer struct {
	Id               string `json:"Id"`
	Name             string `json:"Name"`
	ChannelId        string `json:"ChannelId"`
	ChannelName      string `json:"ChannelName"`
	RecordAnyTime    *bool  `json:"RecordAnyTime"`
	RecordAnyChannel *bool  `json:"RecordAnyChannel"`
}

// ServerStats bundles the on-demand server overview.
type ServerStats struct {
	SystemInfo       SystemInfo      `json:"system_info"`
	RecentActivities []ActivityEntry `json:"recent_activities"`
	ActiveSessions   []Session       `json:"active_sessions"`
}

// RecordingInfo is a display-shaped recording entry.
type RecordingInfo struct {
	Name      string `json:"name"`
	Channel   string `json:"channel"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SeriesRecordingInfo is a display-shaped series rule entry.
type SeriesRecordingInfo struct {
	Name             string `json:"name"`
	Channel          string `json:"channel"`
	RecordAnyTime    bool   `json:"record_any_time"`
	RecordAnyChannel bool   `json:"record_any_channel"`
}

// RecordingsSnapshot is the shaped output of the recordings fetch.
type RecordingsSnapshot struct {
	Active    []RecordingInfo       `json:"active_recordings"`
	Scheduled []RecordingInfo       `json:"scheduled_recordings"`
	Series    []SeriesRecordingInfo `json:"series_recordings"`
}

// LibraryStats is the shaped output of the library statistics fetch.
type LibraryStats struct {
	Counts    ItemCounts `json:"counts"`
	Libraries []View     `json:"libraries"`
}

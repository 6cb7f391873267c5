package emby

import (
	"time"
)

// MovieSummary is the trimmed display shape of a library movie.
type MovieSummary struct {
	ID               string   `json:"id,omitempty"`
	Title            string   `json:"title,omitempty"`
	PremiereDate     string   `json:"premiere_date,omitempty"`
	RuntimeSeconds   *int64   `json:"runtime,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	ImdbID           string   `json:"imdb_id,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	Tagline          string   `json:"tagline,omitempty"`
	ResolutionHeight *int     `json:"resolution_height,omitempty"`
	Image            string   `json:"image,omitempty"`
}

// EpisodeSummary is the trimmed display shape of an episode or schedule entry.
type EpisodeSummary struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title,omitempty"`
	Series         string `json:"series,omitempty"`
	Season         *int   `json:"season,omitempty"`
	Episode        *int   `json:"episode,omitempty"`
	PremiereDate   string `json:"premiere_date,omitempty"`
	RuntimeSeconds *int64 `json:"runtime,omitempty"`
	Image          string `json:"image,omitempty"`
}

func (c *Client) movieSummary(item Item) MovieSummary {
	out := MovieSummary{
		ID:               item.Id,
		Title:            item.Name,
		PremiereDate:     item.PremiereDate,
		RuntimeSeconds:   ticksToSeconds(item.RunTimeTicks),
		Rating:           item.CommunityRating,
		Genres:           item.Genres,
		ResolutionHeight: firstVideoHeight(item.MediaStreams),
		Image:            c.ItemImageURL(item.Id),
	}
	if out.PremiereDate == "" {
		out.PremiereDate = item.ReleaseDate
	}
	if id := item.ProviderIds["Imdb"]; id != "" {
		out.ImdbID = id
	} else {
		out.ImdbID = item.ProviderIds["ImdbId"]
	}
	if len(item.Taglines) > 0 && item.Taglines[0] != "" {
		out.Tagline = item.Taglines[0]
	} else {
		out.Tagline = item.OriginalTitle
	}
	return out
}

func (c *Client) episodeSummary(item Item) EpisodeSummary {
	return EpisodeSummary{
		ID:             item.Id,
		Title:          item.Name,
		Series:         item.SeriesName,
		Season:         firstInt(item.ParentIndexNumber, item.SeasonNumber),
		Episode:        firstInt(item.IndexNumber, item.EpisodeNumber),
		PremiereDate:   item.PremiereDate,
		RuntimeSeconds: ticksToSeconds(item.RunTimeTicks),
		Image:          c.ItemImageURL(item.Id),
	}
}

// ticksToSeconds converts Emby 100ns ticks to whole seconds.
func ticksToSeconds(ticks *int64) *int64 {
	if ticks == nil {
		return nil
	}
	s := *ticks / 10_000_000
	return &s
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstVideoHeight(streams []MediaStream) *int {
	for _, st := range streams {
		if st.Type == "Video" && st.Height != nil {
			return st.Height
		}
	}
	return nil
}

// ParseTime parses Emby timestamps. The server usually emits RFC 3339 with
// seven fractional digits; some builds drop the zone suffix, those are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

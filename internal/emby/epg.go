package emby

import (
	"context"
	"errors"
	"net/url"
)

// epgFields is the field set requested for guide lookups.
const epgFields = "Overview,Genres,StartDate,EndDate,SeriesName,SeasonNumber,EpisodeNumber,ChannelName,ChannelNumber"

func (c *Client) epgQuery(ctx context.Context) url.Values {
	q := url.Values{}
	q.Set("Fields", epgFields)
	if uid, err := c.UserID(ctx); err == nil && uid != "" {
		q.Set("UserId", uid)
	}
	return q
}

// ProgramByID fetches a single guide entry.
func (c *Client) ProgramByID(ctx context.Context, programID string) (*Program, error) {
	var p Program
	path := "/LiveTv/Programs/" + url.PathEscape(programID)
	if err := c.get(ctx, "program_by_id", path, c.epgQuery(ctx), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CurrentProgram finds what is airing on a channel right now. The primary
// guide query is /LiveTv/Programs filtered by channel; older servers only
// answer on the per-channel programs route, which serves as fallback.
func (c *Client) CurrentProgram(ctx context.Context, channelID string) (*Program, error) {
	q := c.epgQuery(ctx)
	q.Set("ChannelIds", channelID)
	q.Set("IsAiring", "true")
	q.Set("Limit", "1")

	var page ItemsPage[Program]
	err := c.get(ctx, "current_program", "/LiveTv/Programs", q, &page)
	if err == nil && len(page.Items) > 0 {
		return &page.Items[0], nil
	}
	if err != nil && errors.Is(err, ErrAuth) {
		return nil, err
	}

	fq := c.epgQuery(ctx)
	fq.Set("IsAiring", "true")
	fq.Set("Limit", "1")
	path := "/LiveTv/Channels/" + url.PathEscape(channelID) + "/Programs"
	var fallback ItemsPage[Program]
	if ferr := c.get(ctx, "channel_programs", path, fq, &fallback); ferr == nil && len(fallback.Items) > 0 {
		return &fallback.Items[0], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// ChannelDetail fetches a live-TV channel record.
func (c *Client) ChannelDetail(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	path := "/LiveTv/Channels/" + url.PathEscape(channelID)
	if err := c.get(ctx, "channel_detail", path, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ProgramForSession resolves guide data for a live-TV session: direct lookup
// by program id when one is known, otherwise whatever is airing on the
// channel. Returns nil without error when neither route yields a program.
func (c *Client) ProgramForSession(ctx context.Context, channelID, programID string) (*Program, error) {
	if programID != "" {
		if p, err := c.ProgramByID(ctx, programID); err == nil && p != nil && p.Id != "" {
			return p, nil
		} else if err != nil && errors.Is(err, ErrAuth) {
			return nil, err
		}
	}
	if channelID != "" {
		return c.CurrentProgram(ctx, channelID)
	}
	return nil, nil
}

package emby

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"
)

const defaultItemFields = "PremiereDate,ReleaseDate,DateCreated,SeriesName,RunTimeTicks,Genres,Taglines,OriginalTitle,MediaStreams,ProviderIds,IndexNumber,ParentIndexNumber"

const defaultExcludeTypes = "CollectionFolder,Folder,Playlist,BoxSet"

// itemsQuery describes one /Users/{id}/Items request. Zero values fall back
// to defaults that target real media rather than folders.
type itemsQuery struct {
	includeTypes string
	sortBy       string
	sortOrder    string
	limit        int
	fields       string
	filters      string
	flat         bool // disables Recursive=true
	excludeTypes string
	extra        url.Values
}

func (c *Client) userItems(ctx context.Context, query itemsQuery) ([]Item, error) {
	uid, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, nil
	}

	if query.sortOrder == "" {
		query.sortOrder = "Descending"
	}
	if query.fields == "" {
		query.fields = defaultItemFields
	}
	if query.excludeTypes == "" {
		query.excludeTypes = defaultExcludeTypes
	}

	q := url.Values{}
	q.Set("IncludeItemTypes", query.includeTypes)
	q.Set("SortBy", query.sortBy)
	q.Set("SortOrder", query.sortOrder)
	q.Set("Limit", strconv.Itoa(query.limit))
	q.Set("Fields", query.fields)
	if !query.flat {
		q.Set("Recursive", "true")
	}
	q.Set("ExcludeItemTypes", query.excludeTypes)
	if query.filters != "" {
		q.Set("Filters", query.filters)
	}
	for k, vs := range query.extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	var page ItemsPage[Item]
	if err := c.get(ctx, "user_items", "/Users/"+url.PathEscape(uid)+"/Items", q, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// LatestMovies returns the most recently added movies in display shape.
func (c *Client) LatestMovies(ctx context.Context, limit int) ([]MovieSummary, error) {
	items, err := c.userItems(ctx, itemsQuery{
		includeTypes: "Movie",
		sortBy:       "DateCreated",
		limit:        limit * 2,
	})
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]MovieSummary, 0, len(items))
	for _, it := range items {
		out = append(out, c.movieSummary(it))
	}
	return out, nil
}

// LatestEpisodes returns the most recently added episodes in display shape.
func (c *Client) LatestEpisodes(ctx context.Context, limit int) ([]EpisodeSummary, error) {
	items, err := c.userItems(ctx, itemsQuery{
		includeTypes: "Episode",
		sortBy:       "DateCreated",
		limit:        limit * 2,
	})
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]EpisodeSummary, 0, len(items))
	for _, it := range items {
		out = append(out, c.episodeSummary(it))
	}
	return out, nil
}

const upcomingFields = "PremiereDate,SeriesName,RunTimeTicks,IndexNumber,ParentIndexNumber"

// UpcomingEpisodes returns episodes that have not aired yet, soonest first.
// /Shows/Upcoming is preferred; servers without it answer through an unaired
// item query instead. Entries whose premiere is already past are dropped.
func (c *Client) UpcomingEpisodes(ctx context.Context, limit int) ([]EpisodeSummary, error) {
	uid, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("UserId", uid)
	q.Set("Limit", strconv.Itoa(limit*8))
	q.Set("Fields", upcomingFields)

	var page ItemsPage[Item]
	items := []Item(nil)
	if err := c.get(ctx, "shows_upcoming", "/Shows/Upcoming", q, &page); err == nil {
		items = page.Items
	}

	now := time.Now().UTC()
	if len(items) == 0 {
		horizon := now.Add(365 * 24 * time.Hour)
		extra := url.Values{}
		extra.Set("MinPremiereDate", now.Format(time.RFC3339))
		extra.Set("MaxPremiereDate", horizon.Format(time.RFC3339))
		extra.Set("IsUnaired", "true")
		items, err = c.userItems(ctx, itemsQuery{
			includeTypes: "Episode",
			sortBy:       "PremiereDate",
			sortOrder:    "Ascending",
			limit:        limit * 12,
			fields:       upcomingFields,
			extra:        extra,
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]EpisodeSummary, 0, len(items))
	for _, it := range items {
		premiere, ok := ParseTime(it.PremiereDate)
		if !ok || premiere.Before(now) {
			continue
		}
		out = append(out, c.episodeSummary(it))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return upcomingSortKey(out[i]) < upcomingSortKey(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func upcomingSortKey(e EpisodeSummary) string {
	if e.PremiereDate == "" {
		return "9999"
	}
	return e.PremiereDate
}

// LibraryStatistics fetches item counts and the user's library views. Both
// sub-queries are best-effort once the user is known.
func (c *Client) LibraryStatistics(ctx context.Context) (*LibraryStats, error) {
	uid, err := c.UserID(ctx)
	if err != nil {
		return nil, err
	}
	stats := &LibraryStats{}
	if uid == "" {
		return stats, nil
	}

	q := url.Values{}
	q.Set("UserId", uid)
	var counts ItemCounts
	if err := c.get(ctx, "item_counts", "/Items/Counts", q, &counts); err == nil {
		stats.Counts = counts
	}

	var views ItemsPage[View]
	if err := c.get(ctx, "user_views", "/Users/"+url.PathEscape(uid)+"/Views", nil, &views); err == nil {
		stats.Libraries = views.Items
	}
	return stats, nil
}

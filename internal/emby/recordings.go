package emby

import (
	"context"
	"net/url"
	"time"
)

// Recordings builds a snapshot of live-TV recording state: what is recording
// right now, what is scheduled, and which series rules exist. Timers are the
// primary source; /LiveTv/Recordings/Active backfills entries the timer list
// misses. Every sub-fetch is best-effort.
func (c *Client) Recordings(ctx context.Context) (*RecordingsSnapshot, error) {
	snap := &RecordingsSnapshot{
		Active:    []RecordingInfo{},
		Scheduled: []RecordingInfo{},
		Series:    []SeriesRecordingInfo{},
	}

	q := url.Values{}
	if uid, err := c.UserID(ctx); err == nil && uid != "" {
		q.Set("UserId", uid)
	}

	now := time.Now().UTC()

	var timers ItemsPage[Timer]
	if err := c.get(ctx, "timers", "/LiveTv/Timers", q, &timers); err == nil {
		for _, timer := range timers.Items {
			info := timerRecordingInfo(timer)
			start, startOK := ParseTime(info.StartTime)
			end, endOK := ParseTime(info.EndTime)

			active := timer.Status == "InProgress" || timer.Status == "Recording"
			if !active && startOK && endOK && !now.Before(start) && !now.After(end) {
				active = true
			}
			switch {
			case active:
				snap.Active = append(snap.Active, info)
			case startOK && start.After(now):
				snap.Scheduled = append(snap.Scheduled, info)
			}
		}

		var backup ItemsPage[Timer]
		if err := c.get(ctx, "active_recordings", "/LiveTv/Recordings/Active", nil, &backup); err == nil {
			for _, item := range backup.Items {
				if hasRecordingNamed(snap.Active, item.Name) {
					continue
				}
				info := RecordingInfo{
					Name:      firstNonEmpty(item.Name, item.ProgramName),
					Channel:   firstNonEmpty(item.ChannelName, item.ChannelId),
					StartTime: item.StartDate,
					EndTime:   item.EndDate,
				}
				snap.Active = append(snap.Active, info)
			}
		}

		// Second pass over the timers: the scheduled list keys on the timer
		// name, which can differ from the nested program name used above.
		for _, timer := range timers.Items {
			if timer.Name == "" {
				continue
			}
			start, ok := ParseTime(timer.StartDate)
			if !ok || !start.After(now) {
				continue
			}
			if hasRecordingNamed(snap.Scheduled, timer.Name) {
				continue
			}
			snap.Scheduled = append(snap.Scheduled, RecordingInfo{
				Name:      timer.Name,
				Channel:   timer.ChannelName,
				StartTime: timer.StartDate,
				EndTime:   timer.EndDate,
			})
		}
	}

	var series ItemsPage[SeriesTimer]
	if err := c.get(ctx, "series_timers", "/LiveTv/SeriesTimers", q, &series); err == nil {
		for _, item := range series.Items {
			info := SeriesRecordingInfo{
				Name:             item.Name,
				Channel:          firstNonEmpty(item.ChannelName, item.ChannelId),
				RecordAnyTime:    true,
				RecordAnyChannel: false,
			}
			if item.RecordAnyTime != nil {
				info.RecordAnyTime = *item.RecordAnyTime
			}
			if item.RecordAnyChannel != nil {
				info.RecordAnyChannel = *item.RecordAnyChannel
			}
			snap.Series = append(snap.Series, info)
		}
	}

	return snap, nil
}

// timerRecordingInfo prefers the nested program block over the timer fields.
func timerRecordingInfo(timer Timer) RecordingInfo {
	if p := timer.ProgramInfo; p != nil {
		return RecordingInfo{
			Name:      p.Name,
			Channel:   p.ChannelName,
			StartTime: p.StartDate,
			EndTime:   p.EndDate,
		}
	}
	return RecordingInfo{
		Name:      timer.Name,
		Channel:   timer.ChannelName,
		StartTime: timer.StartDate,
		EndTime:   timer.EndDate,
	}
}

func hasRecordingNamed(list []RecordingInfo, name string) bool {
	for _, r := range list {
		if r.Name == name {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

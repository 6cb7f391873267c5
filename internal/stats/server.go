package stats

import (
	"sort"
	"strings"

	"github.com/ManuGH/embywatch/internal/emby"
)

// maxRecentActivities caps the activity tail in the server report.
const maxRecentActivities = 5

// ServerReport is the reshaped server overview.
type ServerReport struct {
	ServerName       string               `json:"server_name"`
	Version          string               `json:"version"`
	OperatingSystem  string               `json:"operating_system"`
	Architecture     string               `json:"architecture"`
	ActiveSessions   int                  `json:"active_sessions"`
	UniqueUsers      int                  `json:"unique_users"`
	UniqueDevices    int                  `json:"unique_devices"`
	ContentTypes     map[string]int       `json:"content_types"`
	RecentActivities []emby.ActivityEntry `json:"recent_activities"`
}

// Server reshapes the facade's server aggregate: identity facts, session
// tallies and the last few activity-log entries.
func Server(s *emby.ServerStats) ServerReport {
	report := ServerReport{
		ContentTypes:     map[string]int{},
		RecentActivities: []emby.ActivityEntry{},
	}
	if s == nil {
		return report
	}

	report.ServerName = s.SystemInfo.ServerName
	report.Version = s.SystemInfo.Version
	report.OperatingSystem = s.SystemInfo.OperatingSystem
	report.Architecture = s.SystemInfo.SystemArchitecture

	users := make(map[string]struct{})
	devices := make(map[string]struct{})
	for i := range s.ActiveSessions {
		sess := &s.ActiveSessions[i]
		if sess.UserName != "" {
			users[sess.UserName] = struct{}{}
		}
		if sess.DeviceName != "" {
			devices[sess.DeviceName] = struct{}{}
		}
		if sess.NowPlayingItem == nil {
			continue
		}
		report.ActiveSessions++
		if t := strings.ToLower(sess.NowPlayingItem.Type); t != "" {
			report.ContentTypes[t]++
		}
	}
	report.UniqueUsers = len(users)
	report.UniqueDevices = len(devices)

	activities := s.RecentActivities
	if len(activities) > maxRecentActivities {
		activities = activities[:maxRecentActivities]
	}
	report.RecentActivities = append(report.RecentActivities, activities...)

	return report
}

// RecordingsReport is the recordings snapshot with counts up front.
type RecordingsReport struct {
	ActiveCount    int                        `json:"active_count"`
	ScheduledCount int                        `json:"scheduled_count"`
	SeriesCount    int                        `json:"series_count"`
	Active         []emby.RecordingInfo       `json:"active_recordings"`
	Scheduled      []emby.RecordingInfo       `json:"scheduled_recordings"`
	Series         []emby.SeriesRecordingInfo `json:"series_recordings"`
}

// Recordings wraps the facade's recordings snapshot with counts.
func Recordings(snap *emby.RecordingsSnapshot) RecordingsReport {
	report := RecordingsReport{
		Active:    []emby.RecordingInfo{},
		Scheduled: []emby.RecordingInfo{},
		Series:    []emby.SeriesRecordingInfo{},
	}
	if snap == nil {
		return report
	}
	report.Active = append(report.Active, snap.Active...)
	report.Scheduled = append(report.Scheduled, snap.Scheduled...)
	report.Series = append(report.Series, snap.Series...)
	report.ActiveCount = len(report.Active)
	report.ScheduledCount = len(report.Scheduled)
	report.SeriesCount = len(report.Series)
	return report
}

// LibraryReport is the per-media-type library total view.
type LibraryReport struct {
	Totals    map[string]int `json:"totals"`
	Libraries []emby.View    `json:"libraries"`
}

// Library reshapes the item counts into a named totals map alongside the
// configured library views, sorted by name.
func Library(s *emby.LibraryStats) LibraryReport {
	report := LibraryReport{Totals: map[string]int{}, Libraries: []emby.View{}}
	if s == nil {
		return report
	}

	c := s.Counts
	report.Totals = map[string]int{
		"movies":     c.MovieCount,
		"series":     c.SeriesCount,
		"episodes":   c.EpisodeCount,
		"songs":      c.SongCount,
		"books":      c.BookCount,
		"audiobooks": c.AudioBookCount,
		"trailers":   c.TrailerCount,
		"boxsets":    c.BoxSetCount,
		"playlists":  c.PlaylistCount,
	}

	report.Libraries = append(report.Libraries, s.Libraries...)
	sort.Slice(report.Libraries, func(i, j int) bool {
		return report.Libraries[i].Name < report.Libraries[j].Name
	})
	return report
}

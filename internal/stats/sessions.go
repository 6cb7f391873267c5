// Package stats reshapes session lists and facade aggregates into the
// report structures served by the API. Everything here is a pure function
// over already-fetched data.
package stats

import (
	"sort"

	"github.com/ManuGH/embywatch/internal/emby"
)

// SessionsSummary is the headline view of the current session list.
type SessionsSummary struct {
	ActiveStreams int      `json:"active_streams"`
	TotalSessions int      `json:"total_sessions"`
	Users         []string `json:"users"`
}

// Summary counts active streams and collects the distinct users, sorted.
// A session is an active stream when something is playing on it.
func Summary(sessions []emby.Session) SessionsSummary {
	s := SessionsSummary{TotalSessions: len(sessions), Users: []string{}}

	seen := make(map[string]struct{})
	for i := range sessions {
		sess := &sessions[i]
		if sess.NowPlayingItem != nil {
			s.ActiveStreams++
		}
		if sess.UserName == "" {
			continue
		}
		if _, ok := seen[sess.UserName]; !ok {
			seen[sess.UserName] = struct{}{}
			s.Users = append(s.Users, sess.UserName)
		}
	}
	sort.Strings(s.Users)
	return s
}

// UserSessions lists one user's simultaneous active streams.
type UserSessions struct {
	User     string   `json:"user"`
	Count    int      `json:"count"`
	Sessions []string `json:"sessions"`
}

// MultiSessionUsers returns the users with more than one active stream,
// sorted by user name.
func MultiSessionUsers(sessions []emby.Session) []UserSessions {
	byUser := make(map[string][]string)
	for i := range sessions {
		sess := &sessions[i]
		if sess.NowPlayingItem == nil || sess.UserName == "" {
			continue
		}
		byUser[sess.UserName] = append(byUser[sess.UserName], sess.Key())
	}

	out := []UserSessions{}
	for user, ids := range byUser {
		if len(ids) > 1 {
			out = append(out, UserSessions{User: user, Count: len(ids), Sessions: ids})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

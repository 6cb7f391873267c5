// SPDX-License-Identifier: MIT
package emby

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockServer provides a configurable Emby mock server for testing.
type MockServer struct {
	*httptest.Server
	mu               sync.RWMutex
	token            string
	systemInfo       SystemInfo
	activity         []ActivityEntry
	me               *User
	users            []User
	sessions         []Session
	controllable     []Session // served when ControllableByUserId is present
	programs         map[string]Program
	airing           map[string][]Program
	channelPrograms  map[string][]Program
	channels         map[string]Channel
	timers           []Timer
	activeRecordings []Timer
	seriesTimers     []SeriesTimer
	counts           ItemCounts
	views            []View
	items            map[string][]Item // keyed by IncludeItemTypes
	upcoming         []Item
	commands         []string
	delay            map[string]time.Duration // artificial delay per path
	failures         map[string]int           // failures before success per path
}

// NewMockServer creates a new Emby mock server with default fixtures.
func NewMockServer() *MockServer {
	mock := &MockServer{
		programs:        make(map[string]Program),
		airing:          make(map[string][]Program),
		channelPrograms: make(map[string][]Program),
		channels:        make(map[string]Channel),
		items:           make(map[string][]Item),
		delay:           make(map[string]time.Duration),
		failures:        make(map[string]int),
	}
	mock.SetDefaultData()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /System/Info", mock.handleSystemInfo)
	mux.HandleFunc("GET /System/ActivityLog/Entries", mock.handleActivity)
	mux.HandleFunc("GET /Users/Me", mock.handleUsersMe)
	mux.HandleFunc("GET /Users", mock.handleUsers)
	mux.HandleFunc("GET /Sessions", mock.handleSessions)
	mux.HandleFunc("POST /Sessions/{id}/Playing/{command}", mock.handlePlaying)
	mux.HandleFunc("POST /Sessions/{id}/Command/{name}", mock.handleCommand)
	mux.HandleFunc("GET /LiveTv/Programs", mock.handlePrograms)
	mux.HandleFunc("GET /LiveTv/Programs/{id}", mock.handleProgramByID)
	mux.HandleFunc("GET /LiveTv/Channels/{id}", mock.handleChannel)
	mux.HandleFunc("GET /LiveTv/Channels/{id}/Programs", mock.handleChannelPrograms)
	mux.HandleFunc("GET /LiveTv/Timers", mock.handleTimers)
	mux.HandleFunc("GET /LiveTv/Recordings/Active", mock.handleActiveRecordings)
	mux.HandleFunc("GET /LiveTv/SeriesTimers", mock.handleSeriesTimers)
	mux.HandleFunc("GET /Items/Counts", mock.handleCounts)
	mux.HandleFunc("GET /Users/{uid}/Views", mock.handleViews)
	mux.HandleFunc("GET /Users/{uid}/Items", mock.handleItems)
	mux.HandleFunc("GET /Shows/Upcoming", mock.handleUpcoming)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// SetDefaultData sets up realistic test data.
func (m *MockServer) SetDefaultData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDefaultDataNoLock()
}

func (m *MockServer) setDefaultDataNoLock() {
	m.token = "mock-token"
	m.systemInfo = SystemInfo{
		Id:                 "srv-1",
		ServerName:         "Mock Emby",
		Version:            "4.8.0.80",
		OperatingSystem:    "Linux",
		SystemArchitecture: "X64",
	}
	m.users = []User{
		{Id: "u-guest", Name: "Guest"},
		adminUser("u-admin", "Admin"),
	}
	m.me = nil

	pos := int64(1_230_000_000)
	m.sessions = []Session{
		{
			Id:         "s-movie",
			UserId:     "u-admin",
			UserName:   "Admin",
			DeviceName: "Living Room TV",
			Client:     "Emby Theater",
			NowPlayingItem: &NowPlayingItem{
				Id:           "it-movie",
				Type:         "Movie",
				Name:         "The Test Pattern",
				RunTimeTicks: int64Ptr(72_000_000_000),
			},
			PlayState: &PlayState{
				IsPaused:      false,
				PositionTicks: &pos,
				PlayMethod:    "DirectPlay",
			},
		},
		{
			Id:         "s-idle",
			UserId:     "u-guest",
			UserName:   "Guest",
			DeviceName: "Kitchen Tablet",
			Client:     "Emby Mobile",
		},
	}
	m.controllable = nil
	m.activity = []ActivityEntry{
		{Id: 1, Name: "Admin has started playback", Type: "PlaybackStart", Date: "2026-01-02T20:00:00.0000000Z", UserName: "Admin"},
	}
	m.counts = ItemCounts{MovieCount: 120, SeriesCount: 14, EpisodeCount: 512, SongCount: 2048}
	m.views = []View{
		{Id: "v-movies", Name: "Movies", CollectionType: "movies"},
		{Id: "v-shows", Name: "TV Shows", CollectionType: "tvshows"},
	}
}

func adminUser(id, name string) User {
	u := User{Id: id, Name: name}
	u.Policy.IsAdministrator = true
	return u
}

func int64Ptr(v int64) *int64 { return &v }

// SetToken changes the API key the mock accepts. Empty disables the check.
func (m *MockServer) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Token returns the API key the mock currently accepts.
func (m *MockServer) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SetMe sets the /Users/Me response. Nil makes the endpoint answer 404.
func (m *MockServer) SetMe(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.me = u
}

// SetUsers replaces the /Users list.
func (m *MockServer) SetUsers(users []User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = users
}

// SetSessions replaces the unfiltered session list.
func (m *MockServer) SetSessions(sessions []Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = sessions
}

// SetControllableSessions sets the answer for queries carrying
// ControllableByUserId. Nil serves the unfiltered list for both.
func (m *MockServer) SetControllableSessions(sessions []Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controllable = sessions
}

// AddProgram registers a guide entry for lookup by id.
func (m *MockServer) AddProgram(p Program) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[p.Id] = p
}

// SetAiring sets what /LiveTv/Programs reports as airing on a channel.
func (m *MockServer) SetAiring(channelID string, programs ...Program) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airing[channelID] = programs
}

// SetChannelPrograms sets the per-channel fallback guide route.
func (m *MockServer) SetChannelPrograms(channelID string, programs ...Program) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelPrograms[channelID] = programs
}

// SetChannel registers a channel detail record.
func (m *MockServer) SetChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Id] = ch
}

// SetTimers replaces the recording timer list.
func (m *MockServer) SetTimers(timers []Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = timers
}

// SetActiveRecordings replaces the /LiveTv/Recordings/Active list.
func (m *MockServer) SetActiveRecordings(items []Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeRecordings = items
}

// SetSeriesTimers replaces the series rule list.
func (m *MockServer) SetSeriesTimers(items []SeriesTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seriesTimers = items
}

// SetCounts sets the /Items/Counts response.
func (m *MockServer) SetCounts(counts ItemCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = counts
}

// SetViews replaces the user's library views.
func (m *MockServer) SetViews(views []View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = views
}

// SetItems sets the library items served for an IncludeItemTypes value.
func (m *MockServer) SetItems(includeTypes string, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[includeTypes] = items
}

// SetUpcoming replaces the /Shows/Upcoming list.
func (m *MockServer) SetUpcoming(items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upcoming = items
}

// SetActivity replaces the activity log entries.
func (m *MockServer) SetActivity(entries []ActivityEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = entries
}

// SetSystemInfo replaces the /System/Info payload.
func (m *MockServer) SetSystemInfo(info SystemInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemInfo = info
}

// SetDelay sets an artificial delay for an exact request path.
func (m *MockServer) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[path] = d
}

// SetFailures sets the number of 500 answers before success for a path.
func (m *MockServer) SetFailures(path string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = count
}

// Commands returns the playback commands received so far, oldest first,
// formatted as "Name:sessionID" (Seek carries the tick count as well).
func (m *MockServer) Commands() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Reset clears all mock data and restores the defaults.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs = make(map[string]Program)
	m.airing = make(map[string][]Program)
	m.channelPrograms = make(map[string][]Program)
	m.channels = make(map[string]Channel)
	m.items = make(map[string][]Item)
	m.timers = nil
	m.activeRecordings = nil
	m.seriesTimers = nil
	m.upcoming = nil
	m.commands = nil
	m.delay = make(map[string]time.Duration)
	m.failures = make(map[string]int)
	m.setDefaultDataNoLock()
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// gate applies delay, auth and failure injection. Returns true when the
// handler must not continue.
func (m *MockServer) gate(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	token := m.token
	wait := m.delay[r.URL.Path]
	fail := false
	if n := m.failures[r.URL.Path]; n > 0 {
		m.failures[r.URL.Path] = n - 1
		fail = true
	}
	m.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if token != "" && r.Header.Get(headerToken) != token {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return true
	}
	if fail {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockServer) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, m.systemInfo)
}

func (m *MockServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[ActivityEntry]{Items: m.activity, TotalRecordCount: len(m.activity)})
}

func (m *MockServer) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.me == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, m.me)
}

func (m *MockServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, m.users)
}

func (m *MockServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.sessions
	if r.URL.Query().Get("ControllableByUserId") != "" && m.controllable != nil {
		list = m.controllable
	}
	writeJSON(w, list)
}

func (m *MockServer) handlePlaying(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	id := r.PathValue("id")
	command := r.PathValue("command")
	entry := command + ":" + id
	if ticks := r.URL.Query().Get("PositionTicks"); ticks != "" {
		entry += ":" + ticks
	}
	m.mu.Lock()
	m.commands = append(m.commands, entry)
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.Lock()
	m.commands = append(m.commands, r.PathValue("name")+":"+r.PathValue("id"))
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) handlePrograms(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	programs := m.airing[r.URL.Query().Get("ChannelIds")]
	writeJSON(w, ItemsPage[Program]{Items: programs, TotalRecordCount: len(programs)})
}

func (m *MockServer) handleProgramByID(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.programs[r.PathValue("id")]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (m *MockServer) handleChannel(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[r.PathValue("id")]
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, ch)
}

func (m *MockServer) handleChannelPrograms(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	programs := m.channelPrograms[r.PathValue("id")]
	writeJSON(w, ItemsPage[Program]{Items: programs, TotalRecordCount: len(programs)})
}

func (m *MockServer) handleTimers(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[Timer]{Items: m.timers, TotalRecordCount: len(m.timers)})
}

func (m *MockServer) handleActiveRecordings(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[Timer]{Items: m.activeRecordings, TotalRecordCount: len(m.activeRecordings)})
}

func (m *MockServer) handleSeriesTimers(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[SeriesTimer]{Items: m.seriesTimers, TotalRecordCount: len(m.seriesTimers)})
}

func (m *MockServer) handleCounts(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, m.counts)
}

func (m *MockServer) handleViews(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[View]{Items: m.views, TotalRecordCount: len(m.views)})
}

func (m *MockServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.items[r.URL.Query().Get("IncludeItemTypes")]
	if limitStr := r.URL.Query().Get("Limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit >= 0 && limit < len(items) {
			items = items[:limit]
		}
	}
	writeJSON(w, ItemsPage[Item]{Items: items, TotalRecordCount: len(items)})
}

func (m *MockServer) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if m.gate(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	writeJSON(w, ItemsPage[Item]{Items: m.upcoming, TotalRecordCount: len(m.upcoming)})
}

package emby

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newMockClient(t *testing.T) (*Client, *MockServer) {
	t.Helper()
	srv := NewMockServer()
	t.Cleanup(srv.Close)
	c := New(srv.URL(), Options{Token: srv.Token()})
	return c, srv
}

func TestSessionsReturnsList(t *testing.T) {
	c, _ := newMockClient(t)

	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Key() != "s-movie" {
		t.Fatalf("unexpected session id %q", sessions[0].Key())
	}
	item := sessions[0].NowPlayingItem
	if item == nil || item.Name != "The Test Pattern" {
		t.Fatalf("now playing item not decoded: %+v", item)
	}
	if sessions[0].PlayState == nil || sessions[0].PlayState.PositionTicks == nil {
		t.Fatal("play state position not decoded")
	}
}

func TestSessionsControllableFallback(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetSessions([]Session{{Id: "only-me"}})
	srv.SetControllableSessions([]Session{{Id: "a"}, {Id: "b"}, {Id: "c"}})

	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected filtered list of 3, got %d", len(sessions))
	}
}

func TestSessionsNoFallbackWhenListIsLong(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetSessions([]Session{{Id: "a"}, {Id: "b"}})
	srv.SetControllableSessions([]Session{{Id: "x"}, {Id: "y"}, {Id: "z"}})

	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Id != "a" {
		t.Fatalf("expected unfiltered list, got %+v", sessions)
	}
}

func TestSessionsFallbackKeepsShorterOriginal(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetSessions([]Session{{Id: "plain"}})
	srv.SetControllableSessions([]Session{{Id: "filtered"}})

	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Id != "plain" {
		t.Fatalf("expected original list to win, got %+v", sessions)
	}
}

func TestSessionsAuthError(t *testing.T) {
	srv := NewMockServer()
	t.Cleanup(srv.Close)
	c := New(srv.URL(), Options{Token: "wrong-token"})

	_, err := c.Sessions(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected wrapped 401, got %#v", err)
	}
}

func TestSessionsAuthErrorAfterTokenRotation(t *testing.T) {
	c, srv := newMockClient(t)

	if _, err := c.Sessions(context.Background()); err != nil {
		t.Fatalf("unexpected error before rotation: %v", err)
	}

	srv.SetToken("rotated-on-server")
	_, err := c.Sessions(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth after server token rotation, got %v", err)
	}
}

func TestSessionsMalformedJSON(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{not-json"))
	}))
	defer s.Close()

	c := New(s.URL, Options{})
	_, err := c.Sessions(context.Background())
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestUserIDPrefersAdmin(t *testing.T) {
	c, _ := newMockClient(t)

	uid, err := c.UserID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "u-admin" {
		t.Fatalf("expected admin to win over first user, got %q", uid)
	}
}

func TestUserIDUsesMeWhenAvailable(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetMe(&User{Id: "me-1", Name: "Me"})

	uid, err := c.UserID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "me-1" {
		t.Fatalf("expected /Users/Me id, got %q", uid)
	}
}

func TestUserIDMemoized(t *testing.T) {
	c, srv := newMockClient(t)

	first, err := c.UserID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv.SetUsers(nil)

	second, err := c.UserID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatalf("expected memoized id %q, got %q", first, second)
	}
}

func TestPlaybackCommands(t *testing.T) {
	c, srv := newMockClient(t)
	ctx := context.Background()

	if err := c.Pause(ctx, "s-movie"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.Unpause(ctx, "s-movie"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := c.Stop(ctx, "s-movie"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Seek(ctx, "s-movie", 1.5); err != nil {
		t.Fatalf("seek: %v", err)
	}

	want := []string{
		"Pause:s-movie",
		"Unpause:s-movie",
		"Stop:s-movie",
		"Seek:s-movie:15000000",
	}
	got := srv.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSystemInfo(t *testing.T) {
	c, _ := newMockClient(t)

	info, err := c.SystemInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ServerName != "Mock Emby" || info.Version == "" {
		t.Fatalf("unexpected system info: %+v", info)
	}
}

func TestSystemInfoReflectsServer(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetSystemInfo(SystemInfo{
		ServerName:      "den",
		Version:         "4.9.1.0",
		OperatingSystem: "Linux",
	})

	info, err := c.SystemInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ServerName != "den" || info.Version != "4.9.1.0" {
		t.Fatalf("expected rewritten system info, got %+v", info)
	}
}

func TestServerStatsCapsActivities(t *testing.T) {
	c, srv := newMockClient(t)
	entries := make([]ActivityEntry, 13)
	for i := range entries {
		entries[i] = ActivityEntry{Id: int64(i), Name: "event"}
	}
	srv.SetActivity(entries)

	stats, err := c.ServerStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.RecentActivities) != 10 {
		t.Fatalf("expected 10 activities, got %d", len(stats.RecentActivities))
	}
	if len(stats.ActiveSessions) != 2 {
		t.Fatalf("expected sessions in stats, got %d", len(stats.ActiveSessions))
	}
}

func TestServerStatsSurvivesActivityFailure(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetFailures("/System/ActivityLog/Entries", 1)

	stats, err := c.ServerStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.RecentActivities) != 0 {
		t.Fatalf("expected no activities after failure, got %d", len(stats.RecentActivities))
	}
	if stats.SystemInfo.ServerName != "Mock Emby" {
		t.Fatalf("expected system info despite activity failure")
	}
}

func TestServerStatsFailsWithoutSystemInfo(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetFailures("/System/Info", 1)

	if _, err := c.ServerStats(context.Background()); err == nil {
		t.Fatal("expected error when system info is unavailable")
	}
}

func TestTimeoutClassification(t *testing.T) {
	srv := NewMockServer()
	t.Cleanup(srv.Close)
	srv.SetDelay("/System/Info", 300*time.Millisecond)
	c := New(srv.URL(), Options{Token: srv.Token(), Timeout: 50 * time.Millisecond})

	_, err := c.SystemInfo(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestUnavailableClassification(t *testing.T) {
	srv := NewMockServer()
	base := srv.URL()
	srv.Close()

	c := New(base, Options{})
	_, err := c.Sessions(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestImageURLs(t *testing.T) {
	c := New("http://emby:8096/", Options{Token: "key-1"})

	got := c.ItemImageURL("it-9")
	if got != "http://emby:8096/Items/it-9/Images/Primary?api_key=key-1" {
		t.Fatalf("unexpected item image url %q", got)
	}
	got = c.UserImageURL("u-9")
	if !strings.Contains(got, "/Users/u-9/Images/Primary") {
		t.Fatalf("unexpected user image url %q", got)
	}
	if c.ItemImageURL("") != "" {
		t.Fatal("expected empty url for empty item id")
	}
}

func TestRequestRetainsTraceHeadersAndToken(t *testing.T) {
	var gotToken, gotAccept string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Emby-Token")
		gotAccept = r.Header.Get("Accept")
		writeJSON(w, SystemInfo{Id: "x"})
	}))
	defer s.Close()

	c := New(s.URL, Options{Token: "tok"})
	if _, err := c.SystemInfo(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken != "tok" {
		t.Fatalf("expected token header, got %q", gotToken)
	}
	if gotAccept != "application/json" {
		t.Fatalf("expected json accept header, got %q", gotAccept)
	}
}

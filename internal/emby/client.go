// Package emby is a thin facade over the Emby server HTTP API. It exposes
// typed calls for the handful of endpoints the daemon polls and controls,
// classifies failures into sentinel errors and leaves all interpretation of
// the payloads to the callers.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/embywatch/internal/telemetry"
)

const headerToken = "X-Emby-Token"

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "embywatch"
)

// Client talks to a single Emby server.
type Client struct {
	base      string
	token     string
	userAgent string
	http      *http.Client

	mu     sync.Mutex
	userID string // memoized /Users resolution
}

// Options configures the client. The zero value is usable.
type Options struct {
	Token      string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client // overrides the built-in transport, mainly for tests
}

// New creates a client for the given base URL, e.g. "http://emby:8096".
func New(base string, opts Options) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
				TLSHandshakeTimeout:   5 * time.Second,
			},
		}
	}
	return &Client{
		base:      trimmed,
		token:     opts.Token,
		userAgent: opts.UserAgent,
		http:      httpClient,
	}
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	return c.doRequest(ctx, op, http.MethodGet, path, q, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, q url.Values, body any) error {
	return c.doRequest(ctx, op, http.MethodPost, path, q, body, nil)
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, q url.Values, body, out any) error {
	rawURL := c.base + path
	if len(q) > 0 {
		rawURL += "?" + q.Encode()
	}

	tracer := telemetry.Tracer("embywatch.emby")
	ctx, span := tracer.Start(ctx, "embywatch.emby."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			werr := newDecodeError(op, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return werr
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		werr := newTransportError(op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return werr
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set(headerToken, c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		werr := newTransportError(op, err)
		observeRequest(op, ErrorClass(werr), duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return werr
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	span.SetAttributes(telemetry.HTTPAttributes(method, op, c.base+path, resp.StatusCode)...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		werr := newStatusError(op, resp.StatusCode, b)
		observeRequest(op, ErrorClass(werr), duration)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return werr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			werr := newDecodeError(op, err)
			observeRequest(op, ErrorClass(werr), duration)
			span.SetStatus(codes.Error, "decode failed")
			return werr
		}
	}
	observeRequest(op, "ok", duration)
	span.SetStatus(codes.Ok, "")
	return nil
}

// SystemInfo fetches /System/Info.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.get(ctx, "system_info", "/System/Info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UserID resolves and memoizes the API user: /Users/Me when the server
// supports it, otherwise the first administrator from /Users, otherwise the
// first user. An empty id with a nil error means the server has no users.
func (c *Client) UserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.userID != "" {
		id := c.userID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var me User
	if err := c.get(ctx, "users_me", "/Users/Me", nil, &me); err == nil && me.Id != "" {
		c.storeUserID(me.Id)
		return me.Id, nil
	}

	var users []User
	if err := c.get(ctx, "users", "/Users", nil, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", nil
	}
	pick := users[0]
	for _, u := range users {
		if u.Policy.IsAdministrator {
			pick = u
			break
		}
	}
	if pick.Id != "" {
		c.storeUserID(pick.Id)
	}
	return pick.Id, nil
}

func (c *Client) storeUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func sessionParams() url.Values {
	q := url.Values{}
	q.Set("IncludeDeviceInformation", "true")
	q.Set("IncludePlaybackState", "true")
	q.Set("ExcludeInactive", "false")
	q.Set("ActiveWithinSeconds", "86400")
	return q
}

// Sessions fetches the current session list. Some servers scope the
// unfiltered endpoint to the API key's own session; when the plain query
// yields at most one entry, the call retries with ControllableByUserId and
// keeps whichever answer is longer.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.get(ctx, "sessions", "/Sessions", sessionParams(), &sessions); err != nil {
		return nil, err
	}

	if len(sessions) <= 1 {
		uid, err := c.UserID(ctx)
		if err == nil && uid != "" {
			q := sessionParams()
			q.Set("ControllableByUserId", uid)
			var filtered []Session
			if err := c.get(ctx, "sessions", "/Sessions", q, &filtered); err == nil && len(filtered) > len(sessions) {
				sessions = filtered
			}
		}
	}
	return sessions, nil
}

func (c *Client) playingCommand(ctx context.Context, sessionID, command string, q url.Values) error {
	path := "/Sessions/" + url.PathEscape(sessionID) + "/Playing/" + command
	return c.post(ctx, "playing_"+strings.ToLower(command), path, q, nil)
}

// Pause pauses playback of the given session.
func (c *Client) Pause(ctx context.Context, sessionID string) error {
	return c.playingCommand(ctx, sessionID, "Pause", nil)
}

// Unpause resumes playback of the given session.
func (c *Client) Unpause(ctx context.Context, sessionID string) error {
	return c.playingCommand(ctx, sessionID, "Unpause", nil)
}

// Stop stops playback of the given session.
func (c *Client) Stop(ctx context.Context, sessionID string) error {
	return c.playingCommand(ctx, sessionID, "Stop", nil)
}

// Seek jumps to the given position. Emby counts in 100ns ticks.
func (c *Client) Seek(ctx context.Context, sessionID string, positionSeconds float64) error {
	ticks := int64(positionSeconds * 10_000_000)
	q := url.Values{}
	q.Set("PositionTicks", strconv.FormatInt(ticks, 10))
	return c.playingCommand(ctx, sessionID, "Seek", q)
}

// ItemImageURL returns the primary image URL of an item.
func (c *Client) ItemImageURL(itemID string) string {
	if itemID == "" {
		return ""
	}
	return c.base + "/Items/" + url.PathEscape(itemID) + "/Images/Primary?api_key=" + url.QueryEscape(c.token)
}

// UserImageURL returns the profile image URL of a user.
func (c *Client) UserImageURL(userID string) string {
	if userID == "" {
		return ""
	}
	return c.base + "/Users/" + url.PathEscape(userID) + "/Images/Primary?api_key=" + url.QueryEscape(c.token)
}

// ServerStats bundles system info with recent activity and live sessions.
// Activity and session fetches are best-effort; a failing system info call
// fails the whole snapshot.
func (c *Client) ServerStats(ctx context.Context) (*ServerStats, error) {
	info, err := c.SystemInfo(ctx)
	if err != nil {
		return nil, err
	}
	stats := &ServerStats{SystemInfo: *info}

	var activity ItemsPage[ActivityEntry]
	if err := c.get(ctx, "activity_log", "/System/ActivityLog/Entries", nil, &activity); err == nil {
		entries := activity.Items
		if len(entries) > 10 {
			entries = entries[:10]
		}
		stats.RecentActivities = entries
	}

	if sessions, err := c.Sessions(ctx); err == nil {
		stats.ActiveSessions = sessions
	}
	return stats, nil
}

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/embywatch/internal/cache"
	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
)

// DefaultEPGThrottle is the minimum interval between guide fetches for one
// entity.
const DefaultEPGThrottle = 20 * time.Second

// ProgramSource answers guide lookups. Satisfied by *emby.Client, whose
// ProgramForSession already falls back from a direct program lookup to the
// currently airing program of the channel.
type ProgramSource interface {
	ProgramForSession(ctx context.Context, channelID, programID string) (*emby.Program, error)
	ChannelDetail(ctx context.Context, channelID string) (*emby.Channel, error)
}

// ProgramStore accepts completed guide lookups. Satisfied by *Engine.
type ProgramStore interface {
	StoreProgram(sessionID string, info *ProgramInfo) bool
}

// SchedulerConfig carries the scheduler's collaborators. Source and Store
// are required; Cache, Images and Now are optional.
type SchedulerConfig struct {
	Source ProgramSource
	Store  ProgramStore
	Cache  cache.Cache
	Images ImageURLer
	// MinInterval is the per-entity throttle window, DefaultEPGThrottle
	// when zero.
	MinInterval time.Duration
	Now         func() time.Time
}

// Scheduler augments live-TV entities with guide data. Triggers inside the
// per-entity throttle window are dropped, not queued; each accepted trigger
// runs the fetch chain in a detached goroutine so reconciliation never
// waits on the guide.
type Scheduler struct {
	source      ProgramSource
	store       ProgramStore
	cache       cache.Cache
	images      ImageURLer
	minInterval time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // session id → throttle

	wg sync.WaitGroup
}

// NewScheduler creates a guide scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = DefaultEPGThrottle
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		source:      cfg.Source,
		store:       cfg.Store,
		cache:       cfg.Cache,
		images:      cfg.Images,
		minInterval: interval,
		now:         now,
		logger:      log.WithComponent("epg"),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Trigger requests guide data for a live-TV snapshot. Non-blocking: either
// a fetch goroutine is spawned or the trigger is dropped by the throttle.
func (s *Scheduler) Trigger(ctx context.Context, sessionID string, pb Playback) {
	if pb.ContentType != ContentTVChannel || (pb.ChannelID == "" && pb.ProgramID == "") {
		return
	}
	if !s.allow(sessionID) {
		metrics.IncEPGThrottled()
		s.logger.Debug().
			Str("event", "epg.throttled").
			Str(log.FieldSessionID, sessionID).
			Msg("guide fetch dropped by throttle")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fetch(ctx, sessionID, pb)
	}()
}

// Wait blocks until all in-flight guide fetches finished. Called on
// shutdown after the poll loops stopped triggering.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// allow consumes one token from the session's limiter, creating it on first
// sight. rate.Every(minInterval) with burst 1 yields exactly the contract:
// the first trigger passes, further triggers inside the window drop.
func (s *Scheduler) allow(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.minInterval), 1)
		s.limiters[sessionID] = lim
	}
	return lim.Allow()
}

// fetch runs the lookup chain and stores the outcome. Every failure is
// converted into an error-tagged snapshot here at the task boundary;
// nothing propagates to the reconciliation loop.
func (s *Scheduler) fetch(ctx context.Context, sessionID string, pb Playback) {
	program, err := s.lookupProgram(ctx, pb.ChannelID, pb.ProgramID)
	if err != nil {
		metrics.IncEPGLookup(SourceError)
		s.logger.Warn().
			Err(err).
			Str("event", "epg.fetch_failed").
			Str(log.FieldSessionID, sessionID).
			Str(log.FieldChannelID, pb.ChannelID).
			Str(log.FieldProgramID, pb.ProgramID).
			Msg("guide lookup failed")
		s.finish(sessionID, &ProgramInfo{FetchedAt: s.now(), Source: SourceError})
		return
	}
	if program == nil {
		metrics.IncEPGLookup(SourceNone)
		s.finish(sessionID, &ProgramInfo{FetchedAt: s.now(), Source: SourceNone})
		return
	}

	// The server's program record may be more authoritative than the
	// session about which channel it belongs to.
	channelID := program.ChannelId
	if channelID == "" {
		channelID = pb.ChannelID
	}
	number := firstNonEmpty(string(program.ChannelNumber), string(program.Number), pb.ChannelNumber)
	channelName := program.ChannelName

	if (number == "" || channelName == "") && channelID != "" {
		if ch, cherr := s.lookupChannel(ctx, channelID); cherr == nil && ch != nil {
			if number == "" {
				number = firstNonEmpty(string(ch.Number), string(ch.ChannelNumber))
			}
			if channelName == "" {
				channelName = ch.Name
			}
		}
	}

	source := SourceChannelSearch
	if pb.ProgramID != "" && program.Id == pb.ProgramID {
		source = SourceProgramID
	}
	metrics.IncEPGLookup(source)

	info := &ProgramInfo{
		ID:            program.Id,
		Name:          program.Name,
		SeriesName:    program.SeriesLabel(),
		Overview:      program.Overview,
		StartDate:     program.StartDate,
		EndDate:       program.EndDate,
		ChannelID:     channelID,
		ChannelNumber: number,
		ChannelName:   channelName,
		FetchedAt:     s.now(),
		Source:        source,
	}
	if s.images != nil && program.Id != "" {
		info.ImageURL = s.images.ItemImageURL(program.Id)
	}

	s.logger.Debug().
		Str("event", "epg.resolved").
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldProgramID, program.Id).
		Str(log.FieldChannelID, channelID).
		Str(log.FieldChannelNumber, number).
		Str(log.FieldSource, source).
		Msg("guide data resolved")

	s.finish(sessionID, info)
}

func (s *Scheduler) finish(sessionID string, info *ProgramInfo) {
	if !s.store.StoreProgram(sessionID, info) {
		s.logger.Debug().
			Str("event", "epg.store_skipped").
			Str(log.FieldSessionID, sessionID).
			Msg("entity gone or no longer live TV")
	}
}

// lookupProgram reads through the cache: direct program lookups key on the
// program id, airing lookups on the channel id, both with the short program
// TTL so a throttled entity does not re-ask the server for the same guide
// entry.
func (s *Scheduler) lookupProgram(ctx context.Context, channelID, programID string) (*emby.Program, error) {
	var key string
	switch {
	case programID != "":
		key = cache.ProgramKey(programID)
	case channelID != "":
		key = cache.AiringKey(channelID)
	}

	if key != "" && s.cache != nil {
		if p, ok := cache.Typed[emby.Program](s.cache, key); ok {
			return &p, nil
		}
	}

	p, err := s.source.ProgramForSession(ctx, channelID, programID)
	if err != nil || p == nil {
		return p, err
	}
	if key != "" && s.cache != nil {
		s.cache.Set(key, *p, cache.TTLProgram)
	}
	return p, nil
}

func (s *Scheduler) lookupChannel(ctx context.Context, channelID string) (*emby.Channel, error) {
	key := cache.ChannelKey(channelID)
	if s.cache != nil {
		if ch, ok := cache.Typed[emby.Channel](s.cache, key); ok {
			return &ch, nil
		}
	}
	ch, err := s.source.ChannelDetail(ctx, channelID)
	if err != nil || ch == nil {
		return ch, err
	}
	if s.cache != nil {
		s.cache.Set(key, *ch, cache.TTLChannel)
	}
	return ch, nil
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/metrics"
)

var (
	// ErrUnknownEntity is returned by commands for an id nothing tracks.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrEntityUnavailable is returned by commands for an entity whose
	// session vanished from the server.
	ErrEntityUnavailable = errors.New("entity unavailable")
	// ErrNoCommander is returned when no command backend is configured.
	ErrNoCommander = errors.New("no command backend configured")
)

// Commander sends playback commands upstream. Satisfied by *emby.Client.
type Commander interface {
	Pause(ctx context.Context, sessionID string) error
	Unpause(ctx context.Context, sessionID string) error
	Stop(ctx context.Context, sessionID string) error
	Seek(ctx context.Context, sessionID string, positionSeconds float64) error
}

// Refresher requests an out-of-band poll, typically after a command whose
// effect only the next session fetch can show.
type Refresher interface {
	RequestRefresh()
}

// EPGTrigger accepts live-TV snapshots for asynchronous guide augmentation.
type EPGTrigger interface {
	Trigger(ctx context.Context, sessionID string, pb Playback)
}

// PublishFunc receives a value copy of an entity after every visible state
// change. Listeners run synchronously on the reconciliation goroutine and
// must not call back into the engine.
type PublishFunc func(Entity)

// EngineConfig carries the engine's collaborators. Only Normalizer is
// required in practice; nil optional fields disable the matching feature.
type EngineConfig struct {
	Normalizer *Normalizer
	// OnRegister fires exactly once per session id, before the entity's
	// first publish.
	OnRegister func(Entity)
	Commander  Commander
	Refresher  Refresher
	Now        func() time.Time
}

// Engine owns the session-id to entity mapping. Apply is the single writer
// for playback state; the mutex exists because EPG completions and API
// reads interleave with it.
type Engine struct {
	norm       *Normalizer
	onRegister func(Entity)
	commander  Commander
	refresher  Refresher
	now        func() time.Time
	logger     zerolog.Logger

	mu        sync.RWMutex
	entities  map[string]*Entity // session id → entity
	idToKey   map[string]string  // display id → session id
	epg       EPGTrigger
	listeners []PublishFunc
}

// NewEngine creates an empty engine.
func NewEngine(cfg EngineConfig) *Engine {
	norm := cfg.Normalizer
	if norm == nil {
		norm = NewNormalizer(nil, nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		norm:       norm,
		onRegister: cfg.OnRegister,
		commander:  cfg.Commander,
		refresher:  cfg.Refresher,
		now:        now,
		logger:     log.WithComponent("bridge"),
		entities:   make(map[string]*Entity),
		idToKey:    make(map[string]string),
	}
}

// SetEPGTrigger wires the guide scheduler. Called once during startup; the
// scheduler in turn stores results back through StoreProgram.
func (e *Engine) SetEPGTrigger(t EPGTrigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epg = t
}

// OnPublish registers a listener for entity state changes.
func (e *Engine) OnPublish(fn PublishFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Apply reconciles one session list onto the entity set: new ids create and
// register entities, known ids update in place, absent ids flip to
// unavailable. Entities are never deleted. Applying the same list twice is
// observably idempotent.
func (e *Engine) Apply(ctx context.Context, sessions []emby.Session) {
	type epgRequest struct {
		sessionID string
		pb        Playback
	}
	var (
		registrations []Entity
		publishes     []Entity
		epgRequests   []epgRequest
	)

	e.mu.Lock()

	// Last entry wins for duplicate ids; entries without a usable id are
	// skipped, never fatal.
	order := make([]string, 0, len(sessions))
	latest := make(map[string]emby.Session, len(sessions))
	for _, s := range sessions {
		key := s.Key()
		if key == "" {
			continue
		}
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = s
	}

	present := make(map[string]struct{}, len(order))
	for _, key := range order {
		s := latest[key]
		present[key] = struct{}{}

		ent, known := e.entities[key]
		if !known {
			ent = &Entity{
				ID:        DisplayID(s),
				SessionID: key,
				Name:      DisplayName(s),
			}
			e.entities[key] = ent
			e.idToKey[ent.ID] = key
			metrics.IncReconcile("created")
			e.logger.Info().
				Str("event", "reconcile.entity_created").
				Str(log.FieldEntityID, ent.ID).
				Str(log.FieldSessionID, key).
				Msg("new session entity")
		} else {
			metrics.IncReconcile("updated")
		}

		wasAvailable := ent.Available
		oldState := ent.Playback.State

		ent.UserID = s.UserId
		ent.UserName = s.UserName
		ent.DeviceName = s.DeviceName
		ent.Client = s.Client
		ent.Available = true

		pb := e.norm.Snapshot(s)
		if pb.ContentType != ContentTVChannel {
			// Leaving live TV clears the guide snapshot, no stale
			// carry-over across a content change on the same session.
			ent.Program = nil
		}
		ent.Playback = pb
		ent.UpdatedAt = e.now()

		if known && !wasAvailable {
			e.logger.Info().
				Str("event", "reconcile.entity_recovered").
				Str(log.FieldEntityID, ent.ID).
				Msg("session entity available again")
		}
		if known && oldState != pb.State {
			e.logger.Debug().
				Str("event", "reconcile.state_changed").
				Str(log.FieldEntityID, ent.ID).
				Str(log.FieldOldState, string(oldState)).
				Str(log.FieldNewState, string(pb.State)).
				Msg("playback state changed")
		}

		if !known {
			registrations = append(registrations, *ent)
		}
		publishes = append(publishes, *ent)

		if pb.ContentType == ContentTVChannel && (pb.ChannelID != "" || pb.ProgramID != "") {
			epgRequests = append(epgRequests, epgRequest{sessionID: key, pb: pb})
		}
	}

	for key, ent := range e.entities {
		if _, ok := present[key]; ok || !ent.Available {
			continue
		}
		ent.Available = false
		ent.UpdatedAt = e.now()
		metrics.IncReconcile("marked_unavailable")
		e.logger.Info().
			Str("event", "reconcile.entity_unavailable").
			Str(log.FieldEntityID, ent.ID).
			Str(log.FieldSessionID, key).
			Msg("session vanished, entity kept")
		publishes = append(publishes, *ent)
	}

	total, available, playing := e.countsLocked()
	listeners := e.listenersLocked()
	epgTrigger := e.epg

	e.mu.Unlock()

	metrics.RecordEntityCounts(total, available, playing)

	if e.onRegister != nil {
		for _, ent := range registrations {
			e.onRegister(ent)
		}
	}
	for _, ent := range publishes {
		for _, fn := range listeners {
			fn(ent)
		}
	}
	if epgTrigger != nil {
		for _, req := range epgRequests {
			epgTrigger.Trigger(ctx, req.sessionID, req.pb)
		}
	}
}

// StoreProgram installs a guide result on the entity tracking sessionID and
// republishes it. The entity must still exist, be available and still be
// tuned to live TV; anything else is a safe no-op because reconciliation may
// have moved on while the fetch ran. Reports whether the result was stored.
func (e *Engine) StoreProgram(sessionID string, info *ProgramInfo) bool {
	if info == nil {
		return false
	}

	e.mu.Lock()
	ent, ok := e.entities[sessionID]
	if !ok || !ent.Available || ent.Playback.ContentType != ContentTVChannel {
		e.mu.Unlock()
		return false
	}
	ent.Program = info
	ent.UpdatedAt = e.now()
	snapshot := *ent
	listeners := e.listenersLocked()
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return true
}

// Entities returns value copies of all entities, sorted by display id.
func (e *Engine) Entities() []Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Entity, 0, len(e.entities))
	for _, ent := range e.entities {
		out = append(out, *ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entity returns a value copy of the entity with the given display id.
func (e *Engine) Entity(id string) (Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	key, ok := e.idToKey[id]
	if !ok {
		return Entity{}, false
	}
	ent, ok := e.entities[key]
	if !ok {
		return Entity{}, false
	}
	return *ent, true
}

// Counts reports total, available and actively playing entity counts.
func (e *Engine) Counts() (total, available, playing int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.countsLocked()
}

func (e *Engine) countsLocked() (total, available, playing int) {
	total = len(e.entities)
	for _, ent := range e.entities {
		if !ent.Available {
			continue
		}
		available++
		if ent.Playback.State == StatePlaying {
			playing++
		}
	}
	return total, available, playing
}

func (e *Engine) listenersLocked() []PublishFunc {
	out := make([]PublishFunc, len(e.listeners))
	copy(out, e.listeners)
	return out
}

// Play resumes playback on the entity's session.
func (e *Engine) Play(ctx context.Context, entityID string) error {
	return e.command(ctx, entityID, "play", func(ctx context.Context, sid string) error {
		return e.commander.Unpause(ctx, sid)
	})
}

// Pause pauses playback on the entity's session.
func (e *Engine) Pause(ctx context.Context, entityID string) error {
	return e.command(ctx, entityID, "pause", func(ctx context.Context, sid string) error {
		return e.commander.Pause(ctx, sid)
	})
}

// Stop stops playback on the entity's session.
func (e *Engine) Stop(ctx context.Context, entityID string) error {
	return e.command(ctx, entityID, "stop", func(ctx context.Context, sid string) error {
		return e.commander.Stop(ctx, sid)
	})
}

// Seek jumps to a position on the entity's session.
func (e *Engine) Seek(ctx context.Context, entityID string, positionSeconds float64) error {
	return e.command(ctx, entityID, "seek", func(ctx context.Context, sid string) error {
		return e.commander.Seek(ctx, sid, positionSeconds)
	})
}

// command resolves the entity, sends the upstream command and pokes the
// sessions coordinator. Commands are fire-and-forget: the server does not
// return updated state, only the next poll shows the effect.
func (e *Engine) command(ctx context.Context, entityID, name string, call func(context.Context, string) error) error {
	if e.commander == nil {
		return ErrNoCommander
	}
	ent, ok := e.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	if !ent.Available {
		return fmt.Errorf("%w: %s", ErrEntityUnavailable, entityID)
	}

	if err := call(ctx, ent.SessionID); err != nil {
		metrics.IncCommand(name, "error")
		e.logger.Warn().
			Err(err).
			Str("event", "command.failed").
			Str("command", name).
			Str(log.FieldEntityID, entityID).
			Msg("playback command failed")
		return fmt.Errorf("command %s for %s: %w", name, entityID, err)
	}

	metrics.IncCommand(name, "success")
	e.logger.Info().
		Str("event", "command.sent").
		Str("command", name).
		Str(log.FieldEntityID, entityID).
		Str(log.FieldSessionID, ent.SessionID).
		Msg("playback command sent")

	if e.refresher != nil {
		e.refresher.RequestRefresh()
	}
	return nil
}

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/embywatch/internal/emby"
)

type engineRecorder struct {
	registered []Entity
	published  []Entity
}

func newTestEngine(t *testing.T, cfg EngineConfig) (*Engine, *engineRecorder) {
	t.Helper()
	rec := &engineRecorder{}
	if cfg.Normalizer == nil {
		cfg.Normalizer = NewNormalizer(nil, fixedNow)
	}
	if cfg.Now == nil {
		cfg.Now = fixedNow
	}
	cfg.OnRegister = func(e Entity) { rec.registered = append(rec.registered, e) }
	eng := NewEngine(cfg)
	eng.OnPublish(func(e Entity) { rec.published = append(rec.published, e) })
	return eng, rec
}

func playingSession(id, device, user string) emby.Session {
	return emby.Session{
		Id:         id,
		DeviceName: device,
		UserName:   user,
		NowPlayingItem: &emby.NowPlayingItem{
			Id: "item-" + id, Type: "Movie", Name: "Film " + id,
			RunTimeTicks: int64Ptr(600_000_000),
		},
		PlayState: &emby.PlayState{IsPlaying: true, PositionTicks: int64Ptr(300_000_000)},
	}
}

func liveTVSession(id, channelID, programID string) emby.Session {
	return emby.Session{
		Id:         id,
		DeviceName: "TV",
		NowPlayingItem: &emby.NowPlayingItem{
			Id: "chitem", Type: "TvChannel", Name: "Das Erste",
			ChannelId: channelID, ProgramId: programID,
		},
		PlayState: &emby.PlayState{IsPlaying: true},
	}
}

func TestApplyCreatesAndRegisters(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	entities := eng.Entities()
	require.Len(t, entities, 1)
	ent := entities[0]

	assert.Equal(t, "a", ent.SessionID)
	assert.Equal(t, "TV (anna)", ent.Name)
	assert.True(t, ent.Available)
	assert.Equal(t, StatePlaying, ent.Playback.State)
	assert.Equal(t, ContentMovie, ent.Playback.ContentType)
	require.NotNil(t, ent.Playback.DurationSeconds)
	assert.Equal(t, 60.0, *ent.Playback.DurationSeconds)

	require.Len(t, rec.registered, 1)
	assert.Equal(t, ent.ID, rec.registered[0].ID)
	require.NotEmpty(t, rec.published)
	assert.Equal(t, ent.ID, rec.published[0].ID)

	total, available, playing := eng.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, playing)
}

func TestApplyIdempotent(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})
	sessions := []emby.Session{playingSession("a", "TV", "anna"), playingSession("b", "Phone", "bob")}

	eng.Apply(context.Background(), sessions)
	first := eng.Entities()

	eng.Apply(context.Background(), sessions)
	second := eng.Entities()

	assert.Len(t, rec.registered, 2, "no double registration")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("entity state changed on identical input (-first +second):\n%s", diff)
	}
}

func TestApplyDeduplicatesLastWins(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	s1 := playingSession("a", "TV", "anna")
	s2 := playingSession("a", "TV", "anna")
	s2.NowPlayingItem.Name = "Second Title"

	eng.Apply(context.Background(), []emby.Session{s1, s2})

	entities := eng.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "Second Title", entities[0].Playback.Title)
}

func TestApplySkipsEntriesWithoutID(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{
		{DeviceName: "Ghost"}, // no id at all
		playingSession("a", "TV", "anna"),
	})

	assert.Len(t, eng.Entities(), 1)
	assert.Len(t, rec.registered, 1)
}

func TestApplyAcceptsLegacySessionID(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	s := playingSession("", "TV", "anna")
	s.SessionId = "legacy1"

	eng.Apply(context.Background(), []emby.Session{s})

	entities := eng.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, "legacy1", entities[0].SessionID)
}

func TestApplyIdentifierStability(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
	id := eng.Entities()[0].ID

	// Device rename must not change the identifier.
	renamed := playingSession("a", "Renamed Device", "anna")
	eng.Apply(context.Background(), []emby.Session{renamed})

	entities := eng.Entities()
	require.Len(t, entities, 1)
	assert.Equal(t, id, entities[0].ID)
	assert.Equal(t, "Renamed Device", entities[0].DeviceName)
}

func TestApplyMarksVanishedUnavailable(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
	created := eng.Entities()[0]

	eng.Apply(context.Background(), nil)

	entities := eng.Entities()
	require.Len(t, entities, 1, "entity must not be deleted")
	gone := entities[0]
	assert.False(t, gone.Available)
	assert.Equal(t, created.ID, gone.ID)

	// The snapshot freezes instead of clearing.
	if diff := cmp.Diff(created.Playback, gone.Playback); diff != "" {
		t.Errorf("snapshot changed while unavailable (-created +gone):\n%s", diff)
	}

	// Absence in further polls changes nothing more.
	before := len(rec.published)
	eng.Apply(context.Background(), nil)
	assert.Len(t, rec.published, before, "no re-publish while already unavailable")

	// Reappearance restores availability on the same entity.
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
	restored := eng.Entities()[0]
	assert.True(t, restored.Available)
	assert.Equal(t, created.ID, restored.ID)
	assert.Len(t, rec.registered, 1, "reappearance must not re-register")
}

func TestApplyPublishesUnavailability(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
	before := len(rec.published)

	eng.Apply(context.Background(), nil)

	require.Len(t, rec.published, before+1, "unavailability forces a re-publish")
	assert.False(t, rec.published[before].Available)
}

func TestApplyClearsProgramOnContentChange(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{liveTVSession("a", "ch1", "p1")})
	ok := eng.StoreProgram("a", &ProgramInfo{ID: "p1", Name: "News", Source: SourceProgramID})
	require.True(t, ok)

	require.NotNil(t, eng.Entities()[0].Program)

	// Same session switches to a movie: guide data must not carry over.
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	ent := eng.Entities()[0]
	assert.Nil(t, ent.Program)
	assert.Empty(t, ent.Playback.ChannelID)
	assert.Empty(t, ent.Playback.ProgramID)
}

func TestStoreProgram(t *testing.T) {
	eng, rec := newTestEngine(t, EngineConfig{})
	eng.Apply(context.Background(), []emby.Session{liveTVSession("a", "ch1", "p1")})

	t.Run("stores_and_republishes", func(t *testing.T) {
		before := len(rec.published)
		ok := eng.StoreProgram("a", &ProgramInfo{ID: "p1", Name: "News", Source: SourceProgramID})

		require.True(t, ok)
		ent := eng.Entities()[0]
		require.NotNil(t, ent.Program)
		assert.Equal(t, "News", ent.Program.Name)
		assert.Len(t, rec.published, before+1)
	})

	t.Run("unknown_session_is_noop", func(t *testing.T) {
		assert.False(t, eng.StoreProgram("ghost", &ProgramInfo{Source: SourceNone}))
	})

	t.Run("nil_info_is_noop", func(t *testing.T) {
		assert.False(t, eng.StoreProgram("a", nil))
	})

	t.Run("non_live_entity_is_noop", func(t *testing.T) {
		eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
		assert.False(t, eng.StoreProgram("a", &ProgramInfo{Source: SourceProgramID}))
	})

	t.Run("unavailable_entity_is_noop", func(t *testing.T) {
		eng.Apply(context.Background(), []emby.Session{liveTVSession("a", "ch1", "p1")})
		eng.Apply(context.Background(), nil)
		assert.False(t, eng.StoreProgram("a", &ProgramInfo{Source: SourceProgramID}))
	})
}

func TestEntityLookup(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	id := eng.Entities()[0].ID

	ent, ok := eng.Entity(id)
	require.True(t, ok)
	assert.Equal(t, "a", ent.SessionID)

	_, ok = eng.Entity("emby-nope-000000")
	assert.False(t, ok)
}

func TestEntitiesSortedByID(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	eng.Apply(context.Background(), []emby.Session{
		playingSession("z", "Zeta", "zoe"),
		playingSession("a", "Alpha", "al"),
	})

	entities := eng.Entities()
	require.Len(t, entities, 2)
	assert.Less(t, entities[0].ID, entities[1].ID)
}

type fakeCommander struct {
	calls []string
	seek  float64
	err   error
}

func (f *fakeCommander) Pause(_ context.Context, sid string) error {
	f.calls = append(f.calls, "pause:"+sid)
	return f.err
}

func (f *fakeCommander) Unpause(_ context.Context, sid string) error {
	f.calls = append(f.calls, "unpause:"+sid)
	return f.err
}

func (f *fakeCommander) Stop(_ context.Context, sid string) error {
	f.calls = append(f.calls, "stop:"+sid)
	return f.err
}

func (f *fakeCommander) Seek(_ context.Context, sid string, pos float64) error {
	f.calls = append(f.calls, "seek:"+sid)
	f.seek = pos
	return f.err
}

type fakeRefresher struct{ refreshes int }

func (f *fakeRefresher) RequestRefresh() { f.refreshes++ }

func TestCommands(t *testing.T) {
	cmd := &fakeCommander{}
	ref := &fakeRefresher{}
	eng, _ := newTestEngine(t, EngineConfig{Commander: cmd, Refresher: ref})

	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
	id := eng.Entities()[0].ID
	ctx := context.Background()

	require.NoError(t, eng.Play(ctx, id))
	require.NoError(t, eng.Pause(ctx, id))
	require.NoError(t, eng.Stop(ctx, id))
	require.NoError(t, eng.Seek(ctx, id, 42.5))

	assert.Equal(t, []string{"unpause:a", "pause:a", "stop:a", "seek:a"}, cmd.calls)
	assert.Equal(t, 42.5, cmd.seek)
	assert.Equal(t, 4, ref.refreshes, "every command pokes the poll loop")
}

func TestCommandErrors(t *testing.T) {
	t.Run("unknown_entity", func(t *testing.T) {
		eng, _ := newTestEngine(t, EngineConfig{Commander: &fakeCommander{}})
		err := eng.Pause(context.Background(), "emby-nope-000000")
		assert.ErrorIs(t, err, ErrUnknownEntity)
	})

	t.Run("unavailable_entity", func(t *testing.T) {
		eng, _ := newTestEngine(t, EngineConfig{Commander: &fakeCommander{}})
		eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
		id := eng.Entities()[0].ID
		eng.Apply(context.Background(), nil)

		err := eng.Pause(context.Background(), id)
		assert.ErrorIs(t, err, ErrEntityUnavailable)
	})

	t.Run("upstream_failure_wrapped", func(t *testing.T) {
		upstream := errors.New("boom")
		ref := &fakeRefresher{}
		eng, _ := newTestEngine(t, EngineConfig{Commander: &fakeCommander{err: upstream}, Refresher: ref})
		eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
		id := eng.Entities()[0].ID

		err := eng.Stop(context.Background(), id)
		assert.ErrorIs(t, err, upstream)
		assert.Zero(t, ref.refreshes, "failed commands do not poke the poll loop")
	})

	t.Run("no_commander", func(t *testing.T) {
		eng, _ := newTestEngine(t, EngineConfig{})
		eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})
		id := eng.Entities()[0].ID

		err := eng.Play(context.Background(), id)
		assert.ErrorIs(t, err, ErrNoCommander)
	})
}

type fakeTrigger struct {
	triggers []string
	last     Playback
}

func (f *fakeTrigger) Trigger(_ context.Context, sessionID string, pb Playback) {
	f.triggers = append(f.triggers, sessionID)
	f.last = pb
}

func TestApplyTriggersEPGForLiveTV(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	trig := &fakeTrigger{}
	eng.SetEPGTrigger(trig)

	eng.Apply(context.Background(), []emby.Session{
		liveTVSession("a", "ch1", "p1"),
		playingSession("b", "TV", "anna"), // movie, no trigger
	})

	require.Equal(t, []string{"a"}, trig.triggers)
	assert.Equal(t, "ch1", trig.last.ChannelID)
	assert.Equal(t, "p1", trig.last.ProgramID)
}

func TestApplySkipsEPGWithoutIdentity(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	trig := &fakeTrigger{}
	eng.SetEPGTrigger(trig)

	// Live TV but neither channel nor program id resolvable: the item id
	// fallback always yields a channel id, so force the edge with an
	// empty item id.
	s := emby.Session{
		Id:             "a",
		NowPlayingItem: &emby.NowPlayingItem{Type: "TvChannel"},
	}
	eng.Apply(context.Background(), []emby.Session{s})

	assert.Empty(t, trig.triggers)
}

func TestApplyUpdatedAtUsesInjectedClock(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	assert.Equal(t, testClock, eng.Entities()[0].UpdatedAt)
}

func TestEntitiesReturnsCopies(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	got := eng.Entities()
	got[0].Name = "mutated"
	got[0].Playback.Title = "mutated"

	fresh := eng.Entities()
	assert.Equal(t, "TV (anna)", fresh[0].Name)
	assert.Equal(t, "Film a", fresh[0].Playback.Title)
}

func TestApplyCountsIgnoreUnavailable(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	eng.Apply(context.Background(), []emby.Session{
		playingSession("a", "TV", "anna"),
		playingSession("b", "Phone", "bob"),
	})
	eng.Apply(context.Background(), []emby.Session{playingSession("a", "TV", "anna")})

	total, available, playing := eng.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, playing)
}

func TestApplyPausedNotCountedAsPlaying(t *testing.T) {
	eng, _ := newTestEngine(t, EngineConfig{})

	paused := playingSession("a", "TV", "anna")
	paused.PlayState.IsPaused = true

	eng.Apply(context.Background(), []emby.Session{paused})

	_, available, playing := eng.Counts()
	assert.Equal(t, 1, available)
	assert.Equal(t, 0, playing)
}

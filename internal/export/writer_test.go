// SPDX-License-Identifier: MIT

package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/embywatch/internal/bridge"
	"github.com/ManuGH/embywatch/internal/emby"
)

func playingSession(id, user, title string) emby.Session {
	return emby.Session{
		Id:         id,
		UserName:   user,
		DeviceName: "TV",
		NowPlayingItem: &emby.NowPlayingItem{
			Id: "item-" + id, Name: title, Type: "Movie",
		},
	}
}

func seededEngine(t *testing.T, sessions ...emby.Session) *bridge.Engine {
	t.Helper()
	eng := bridge.NewEngine(bridge.EngineConfig{})
	eng.Apply(context.Background(), sessions)
	return eng
}

func readState(t *testing.T, path string) State {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(raw, &state))
	return state
}

// startWriter runs w in the background and returns a stop function that
// cancels the loop and waits for it to exit.
func startWriter(t *testing.T, w *Writer) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("export loop did not stop")
		}
	}
}

func TestWriteOnce(t *testing.T) {
	eng := seededEngine(t, playingSession("s1", "anna", "Heat"))
	path := filepath.Join(t.TempDir(), "state.json")

	w := NewWriter(Config{Path: path, Source: eng, Version: "1.2.3"})
	require.NoError(t, w.WriteOnce())

	state := readState(t, path)
	assert.Equal(t, "1.2.3", state.Version)
	assert.WithinDuration(t, time.Now(), state.GeneratedAt, time.Minute)
	assert.Equal(t, Stats{Total: 1, Available: 1, Playing: 1}, state.Stats)

	require.Len(t, state.Entities, 1)
	ent := state.Entities[0]
	assert.Equal(t, "s1", ent.SessionID)
	assert.True(t, ent.Available)
	assert.Equal(t, "playing", ent.State)
	assert.False(t, ent.UpdatedAt.IsZero())
	assert.Equal(t, "Heat", ent.Attributes["title"])
}

func TestWriteOnceEmptyRegistry(t *testing.T) {
	eng := seededEngine(t)
	path := filepath.Join(t.TempDir(), "state.json")

	w := NewWriter(Config{Path: path, Source: eng})
	require.NoError(t, w.WriteOnce())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entities": []`)

	state := readState(t, path)
	assert.Equal(t, Stats{}, state.Stats)
	assert.Empty(t, state.Entities)
}

func TestWriteOnceReplacesExistingFile(t *testing.T) {
	eng := seededEngine(t, playingSession("s1", "anna", "Heat"))
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	w := NewWriter(Config{Path: path, Source: eng})
	require.NoError(t, w.WriteOnce())

	state := readState(t, path)
	assert.Equal(t, 1, state.Stats.Total)
}

func TestWriteOnceFailsWithoutDirectory(t *testing.T) {
	eng := seededEngine(t)
	path := filepath.Join(t.TempDir(), "missing", "state.json")

	w := NewWriter(Config{Path: path, Source: eng})
	err := w.WriteOnce()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create pending state file")
}

func TestRunWritesImmediatelyOnFirstChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := seededEngine(t, playingSession("s1", "anna", "Heat"))
	path := filepath.Join(t.TempDir(), "state.json")

	w := NewWriter(Config{Path: path, Source: eng, Interval: time.Hour})
	stop := startWriter(t, w)
	defer stop()

	w.Notify(bridge.Entity{})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	state := readState(t, path)
	assert.Equal(t, 1, state.Stats.Total)
}

func TestRunCoalescesIntoTrailingWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := seededEngine(t, playingSession("s1", "anna", "Heat"))
	path := filepath.Join(t.TempDir(), "state.json")

	w := NewWriter(Config{Path: path, Source: eng, Interval: 50 * time.Millisecond})
	stop := startWriter(t, w)
	defer stop()

	w.Notify(bridge.Entity{})
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	eng.Apply(context.Background(), []emby.Session{
		playingSession("s1", "anna", "Heat"),
		playingSession("s2", "ben", "Ronin"),
	})
	w.Notify(bridge.Entity{})
	w.Notify(bridge.Entity{})

	require.Eventually(t, func() bool {
		return readState(t, path).Stats.Total == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunFlushesPendingOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := seededEngine(t, playingSession("s1", "anna", "Heat"))
	path := filepath.Join(t.TempDir(), "state.json")

	w := NewWriter(Config{Path: path, Source: eng, Interval: time.Hour})
	stop := startWriter(t, w)

	w.Notify(bridge.Entity{})
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	eng.Apply(context.Background(), []emby.Session{
		playingSession("s1", "anna", "Heat"),
		playingSession("s2", "ben", "Ronin"),
	})
	w.Notify(bridge.Entity{})

	stop()

	state := readState(t, path)
	assert.Equal(t, 2, state.Stats.Total)
}

func TestRunSurvivesWriteFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := seededEngine(t)
	path := filepath.Join(t.TempDir(), "missing", "state.json")

	w := NewWriter(Config{Path: path, Source: eng, Interval: time.Millisecond})
	stop := startWriter(t, w)
	w.Notify(bridge.Entity{})
	stop()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

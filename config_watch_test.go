//go:build linux || darwin

package tangelo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan ConfigEvent) ConfigEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config event")
		return ConfigEvent{}
	}
}

func TestConfigWatch(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "watched.conf")
	writeConfig(t, path, `{"port": 9000}`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, cleanup, err := store.Watch(ctx, path)
	require.NoError(t, err)
	defer func() { _ = cleanup() }()

	ev := nextEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, 9000, ev.Config.Port)

	t.Run("save is reported", func(t *testing.T) {
		cfg := ev.Config
		cfg.Port = 9001
		require.NoError(t, store.Save(cfg, path))

		got := nextEvent(t, events)
		require.NoError(t, got.Err)
		assert.Equal(t, 9001, got.Config.Port)
	})

	t.Run("malformed content is an error event", func(t *testing.T) {
		writeConfig(t, path, `{"port": `)

		got := nextEvent(t, events)
		assert.ErrorIs(t, got.Err, ErrConfig)
	})

	t.Run("recovery after error", func(t *testing.T) {
		writeConfig(t, path, `{"port": 9002}`)

		got := nextEvent(t, events)
		require.NoError(t, got.Err)
		assert.Equal(t, 9002, got.Config.Port)
	})

	t.Run("sibling files are ignored", func(t *testing.T) {
		writeConfig(t, filepath.Join(dir, "other.conf"), `{"port": 1}`)

		select {
		case got := <-events:
			t.Fatalf("unexpected event %+v", got)
		case <-time.After(10 * DefaultWatchDebounce):
		}
	})
}

func TestConfigWatchCleanup(t *testing.T) {
	store, dir := newTestStore(t)
	path := filepath.Join(dir, "watched.conf")
	writeConfig(t, path, `{}`)

	events, cleanup, err := store.Watch(context.Background(), path)
	require.NoError(t, err)
	nextEvent(t, events)

	done := make(chan error, 1)
	go func() { done <- cleanup() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleanup took too long")
	}

	select {
	case _, ok := <-events:
		assert.False(t, ok, "events channel still open after cleanup")
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestConfigWatchMissingDirectory(t *testing.T) {
	store, dir := newTestStore(t)

	_, _, err := store.Watch(context.Background(), filepath.Join(dir, "nope", "x.conf"))
	assert.ErrorIs(t, err, ErrConfig)
}

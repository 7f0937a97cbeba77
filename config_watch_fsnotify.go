//go:build linux || darwin

package tangelo

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// configWatchState holds what the debounced reload compares against
type configWatchState struct {
	mu        sync.Mutex
	last      Config
	lastErr   string
	seen      bool
	debouncer *time.Timer
}

func watchConfig(ctx context.Context, s *ConfigStore, path string) (<-chan ConfigEvent, WatchCleanupFunc, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, opErr(OpWatch, path, ErrConfig, err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, opErr(OpWatch, path, ErrConfig, err)
	}

	ch := make(chan ConfigEvent, 10)
	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	state := &configWatchState{}

	send := func(ev ConfigEvent) {
		if sctx.IsStopping() {
			return
		}
		select {
		case ch <- ev:
		case <-sctx.Stopping():
		}
	}

	reload := func() {
		if sctx.IsStopping() {
			return
		}
		cfg, err := s.Load(path)

		state.mu.Lock()
		if err != nil {
			// Repeat errors only when they change
			msg := err.Error()
			if msg == state.lastErr {
				state.mu.Unlock()
				return
			}
			state.lastErr = msg
			state.mu.Unlock()
			send(ConfigEvent{Path: path, Err: err})
			return
		}
		if state.seen && state.lastErr == "" && cfg.Equal(state.last) {
			state.mu.Unlock()
			return
		}
		state.last, state.lastErr, state.seen = cfg, "", true
		state.mu.Unlock()

		s.logger.Debug("config changed", "path", path)
		send(ConfigEvent{Path: path, Config: cfg})
	}

	reload()

	// The debouncer only signals; reloads run on the watch goroutine so
	// nothing sends after the channel is closed.
	trigger := make(chan struct{}, 1)
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			state.mu.Lock()
			if state.debouncer != nil {
				state.debouncer.Stop()
			}
			state.mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case <-trigger:
				reload()

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				state.mu.Lock()
				if state.debouncer != nil {
					state.debouncer.Stop()
				}
				state.debouncer = time.AfterFunc(DefaultWatchDebounce, fire)
				state.mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					send(ConfigEvent{Path: path, Err: opErr(OpWatch, path, ErrConfig, err)})
				}
			}
		}
		return nil
	})

	return ch, cleanup, nil
}

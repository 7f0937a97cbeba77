package tangelo

import "context"

// ConfigEvent is delivered when a watched config file changes
type ConfigEvent struct {
	// Path is the watched file
	Path string
	// Config is the freshly loaded, normalized config
	Config Config
	// Err is set when the file could not be loaded or watched
	Err error
}

// WatchCleanupFunc stops a watch and waits for its goroutine to exit
type WatchCleanupFunc func() error

// Watch reports the config at path each time its content changes. The
// current content is sent first. Writes made through Save replace the file
// by rename, so the containing directory is watched.
func (s *ConfigStore) Watch(ctx context.Context, path string) (<-chan ConfigEvent, WatchCleanupFunc, error) {
	return watchConfig(ctx, s, path)
}

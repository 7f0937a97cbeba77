//go:build !linux && !darwin

package tangelo

import (
	"context"
	"errors"
)

func watchConfig(ctx context.Context, s *ConfigStore, path string) (<-chan ConfigEvent, WatchCleanupFunc, error) {
	return nil, nil, opErr(OpWatch, path, ErrConfig, errors.New("watch not supported on this platform"))
}

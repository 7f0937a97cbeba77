package tangelo

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/renameio/v2"
)

// ConfigStore loads, normalizes and persists instance config files
type ConfigStore struct {
	env    *Env
	logger *log.Logger
}

// NewConfigStore creates a ConfigStore using the defaults carried by env
func NewConfigStore(env *Env) *ConfigStore {
	return &ConfigStore{
		env:    env,
		logger: env.component("config"),
	}
}

// Defaults returns a normalized config holding every default value
func (s *ConfigStore) Defaults() Config {
	return s.Normalize(s.env.DefaultConfig())
}

// Normalize fills empty string fields with their defaults and expands ~ in
// root and logdir. It is the single place defaults are applied; Load runs
// every decoded file through it.
func (s *ConfigStore) Normalize(c Config) Config {
	d := s.env.DefaultConfig()
	c = c.Clone()
	if c.Hostname == "" {
		c.Hostname = d.Hostname
	}
	if c.Root == "" {
		c.Root = d.Root
	}
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.VTKPython == "" {
		c.VTKPython = d.VTKPython
	}
	if c.User == "" {
		c.User = d.User
	}
	if c.Group == "" {
		c.Group = d.Group
	}
	c.Root = s.env.ExpandPath(c.Root)
	c.LogDir = s.env.ExpandPath(c.LogDir)
	return c
}

// Exists reports whether path names an existing regular file
func (s *ConfigStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Load reads the config at path and fills every absent key with its default
func (s *ConfigStore) Load(path string) (Config, error) {
	return s.LoadWithOverlay(path, Overlay{})
}

// LoadWithOverlay is Load, except keys absent from the file are first taken
// from overlay when the overlay carries a value for them.
func (s *ConfigStore) LoadWithOverlay(path string, overlay Overlay) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, opErr(OpLoad, path, ErrConfig, err)
	}

	c, present, err := decodeConfig(data, s.env.DefaultConfig())
	if err != nil {
		return Config{}, opErr(OpLoad, path, ErrConfig, err)
	}

	if !present[KeyHostname] && overlay.Hostname != "" {
		c.Hostname = overlay.Hostname
	}
	if !present[KeyPort] && overlay.Port > 0 {
		c.Port = overlay.Port
	}
	if !present[KeyRoot] && overlay.Root != "" {
		c.Root = overlay.Root
	}
	if !present[KeyLogDir] && overlay.LogDir != "" {
		c.LogDir = overlay.LogDir
	}

	s.logger.Debug("loaded config", "path", path, "keys", len(present))
	return s.Normalize(c), nil
}

// LoadOrDefault loads path when it exists and returns the defaults when it
// does not. A file that exists but cannot be parsed is still an error.
func (s *ConfigStore) LoadOrDefault(path string) (Config, error) {
	c, err := s.Load(path)
	if err == nil {
		return c, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return s.Defaults(), nil
	}
	return Config{}, err
}

// Save writes c to path. Empty strings are omitted, and user/group are
// omitted when drop_privileges is false.
func (s *ConfigStore) Save(c Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return opErr(OpSave, path, ErrWrite, errors.New("empty path"))
	}

	data, err := encodeConfig(c)
	if err != nil {
		return opErr(OpSave, path, ErrWrite, err)
	}

	if err := renameio.WriteFile(path, data, FileMode); err != nil {
		return opErr(OpSave, path, ErrWrite, err)
	}

	s.logger.Debug("saved config", "path", path, "port", c.Port, "daemonize", c.Daemonize)
	return nil
}

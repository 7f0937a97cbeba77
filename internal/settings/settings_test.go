package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, "tangelo", s.Tool)
	assert.Equal(t, OutputTable, s.Output)
	assert.Equal(t, 5*time.Second, s.StopGrace)
	assert.Zero(t, s.CommandTimeout)
	require.NoError(t, s.Validate())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v := viper.New()
	require.NoError(t, Init(v, ""))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
tool: /opt/tangelo/bin/tangelo
command_timeout: 30s
concurrency: 8
output: json
default_config_paths:
  - /srv/tangelo.conf
`), 0o644))
	t.Setenv("TANGELO_WRAPPER_LOG_LEVEL", "debug")

	v := viper.New()
	require.NoError(t, Init(v, file))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/opt/tangelo/bin/tangelo", s.Tool)
	assert.Equal(t, 30*time.Second, s.CommandTimeout)
	assert.Equal(t, 8, s.Concurrency)
	assert.Equal(t, OutputJSON, s.Output)
	assert.Equal(t, []string{"/srv/tangelo.conf"}, s.DefaultConfigPaths)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestInitExplicitMissingFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"bad level", func(s *Settings) { s.LogLevel = "loud" }},
		{"bad format", func(s *Settings) { s.LogFormat = "xml" }},
		{"bad output", func(s *Settings) { s.Output = "csv" }},
		{"empty tool", func(s *Settings) { s.Tool = "" }},
		{"negative timeout", func(s *Settings) { s.CommandTimeout = -time.Second }},
		{"zero concurrency", func(s *Settings) { s.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			assert.Error(t, s.Validate())
		})
	}
}

//go:build linux

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axondata/go-tangelo"
)

// fakeTool is a tangelo stand-in: no daemons, and start runs in the
// foreground printing a line every 100ms
const fakeTool = `#!/bin/sh
case "$1" in
status)
	echo "no tangelo instances running" >&2
	;;
start)
	if [ -n "$TANGELO_FAKE_EXIT" ]; then
		echo starting
		sleep 0.5
		exit "$TANGELO_FAKE_EXIT"
	fi
	while :; do
		echo tick
		sleep 0.1
	done
	;;
esac
`

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newForegroundApp(t *testing.T, echo io.Writer, runnerEnv ...string) (*app, string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	tool := filepath.Join(dir, "tangelo")
	require.NoError(t, os.WriteFile(tool, []byte(fakeTool), 0o755))
	conf := filepath.Join(dir, "fg.conf")
	require.NoError(t, os.WriteFile(conf, []byte(`{"daemonize": false, "logdir": "`+dir+`"}`), 0o644))

	env := tangelo.NewEnv(
		tangelo.WithToolPath(tool),
		tangelo.WithHomeDir(dir),
		tangelo.WithDefaultConfigPaths(),
		tangelo.WithStopGrace(2*time.Second),
		tangelo.WithRunner(&tangelo.ExecRunner{Env: runnerEnv}),
		tangelo.WithForegroundOutput(echo, echo),
	)
	return &app{logger: log.New(io.Discard), ctl: tangelo.NewController(env)}, conf
}

func TestAttachStopsForegroundOnInterrupt(t *testing.T) {
	echo := &lockedBuffer{}
	a, conf := newForegroundApp(t, echo)

	res := a.ctl.Execute(context.Background(), tangelo.StartCommand{Path: conf})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Instance)
	require.Equal(t, tangelo.ModeRunningForeign, res.Instance.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- attach(ctx, a, res.Instance) }()

	// the server keeps writing while the command is attached
	require.Eventually(t, func() bool {
		return strings.Count(echo.String(), "tick") >= 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not return after cancel")
	}

	_, ok := a.ctl.Registry().Get(res.Instance.ID)
	assert.False(t, ok, "stopped instance still tracked")
}

func TestAttachReturnsChildExit(t *testing.T) {
	echo := &lockedBuffer{}
	a, conf := newForegroundApp(t, echo, "TANGELO_FAKE_EXIT=3")

	res := a.ctl.Execute(context.Background(), tangelo.StartCommand{Path: conf})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Instance)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := attach(ctx, a, res.Instance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, echo.String(), "starting")
}

func TestAttachIgnoresDaemons(t *testing.T) {
	a := &app{logger: log.New(io.Discard)}
	assert.NoError(t, attach(context.Background(), a, nil))
	assert.NoError(t, attach(context.Background(), a, &tangelo.InstanceSnapshot{ID: "101", Mode: tangelo.ModeRunningDaemon}))
}

//go:build linux

package tangelo

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcfsTableSelf(t *testing.T) {
	table := NewProcessTable()
	pid := os.Getpid()

	entries, err := table.List()
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.PID == pid {
			found = true
			assert.NotEmpty(t, e.Cmdline)
		}
	}
	assert.True(t, found, "own pid missing from process table")

	e, err := table.Lookup(pid)
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	wd, err = filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Equal(t, wd, e.Cwd)
	assert.True(t, table.Alive(pid))
}

func TestProcfsTableTerminate(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	cmd := exec.Command(sleep, "30")
	cmd.Dir = t.TempDir()
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	table := NewProcessTable()
	e, err := table.Lookup(pid)
	require.NoError(t, err)
	assert.Equal(t, "30", e.Cmdline[len(e.Cmdline)-1])
	assert.Equal(t, filepath.Base(sleep), filepath.Base(e.Cmdline[0]))

	require.NoError(t, table.Terminate(pid))
	_ = cmd.Wait()
	assert.False(t, table.Alive(pid))

	// a second terminate of a reaped pid is not an error
	assert.NoError(t, table.Terminate(pid))
}

func TestProcfsTableMissingMount(t *testing.T) {
	_, err := NewProcessTableAt(filepath.Join(t.TempDir(), "no-proc"))
	assert.Error(t, err)
}

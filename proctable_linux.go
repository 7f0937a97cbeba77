//go:build linux

package tangelo

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/axondata/go-tangelo/internal/unix"
)

// procfsTable reads the process table from /proc
type procfsTable struct {
	fs  procfs.FS
	err error
}

// NewProcessTable returns the process table of the running system
func NewProcessTable() ProcessTable {
	fs, err := procfs.NewDefaultFS()
	return &procfsTable{fs: fs, err: err}
}

// NewProcessTableAt reads the process table from a proc mount other than /proc
func NewProcessTableAt(mountPoint string) (ProcessTable, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	return &procfsTable{fs: fs}, nil
}

func (t *procfsTable) List() ([]ProcessEntry, error) {
	if t.err != nil {
		return nil, t.err
	}

	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("reading process table: %w", err)
	}

	entries := make([]ProcessEntry, 0, len(procs))
	for _, p := range procs {
		// Exited between listing and reading, or not ours to inspect
		cmdline, err := p.CmdLine()
		if err != nil || len(cmdline) == 0 {
			continue
		}
		entries = append(entries, ProcessEntry{PID: p.PID, Cmdline: cmdline})
	}
	return entries, nil
}

func (t *procfsTable) Lookup(pid int) (ProcessEntry, error) {
	if t.err != nil {
		return ProcessEntry{}, t.err
	}

	p, err := t.fs.Proc(pid)
	if err != nil {
		return ProcessEntry{}, err
	}
	cmdline, err := p.CmdLine()
	if err != nil {
		return ProcessEntry{}, err
	}
	cwd, _ := p.Cwd()
	return ProcessEntry{PID: pid, Cmdline: cmdline, Cwd: cwd}, nil
}

func (t *procfsTable) Terminate(pid int) error {
	return terminate(pid)
}

func (t *procfsTable) Alive(pid int) bool {
	return unix.Alive(pid)
}

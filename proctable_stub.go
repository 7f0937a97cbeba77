//go:build !linux

package tangelo

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/axondata/go-tangelo/internal/unix"
)

// stubTable is used where no process table reader exists
type stubTable struct{}

// NewProcessTable returns a table that can signal but not list processes
func NewProcessTable() ProcessTable {
	return stubTable{}
}

func (stubTable) List() ([]ProcessEntry, error) {
	return nil, fmt.Errorf("process table on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}

func (stubTable) Lookup(pid int) (ProcessEntry, error) {
	return ProcessEntry{}, fmt.Errorf("process table on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}

func (stubTable) Terminate(pid int) error {
	return terminate(pid)
}

func (stubTable) Alive(pid int) bool {
	return unix.Alive(pid)
}

package tangelo

import (
	"github.com/axondata/go-tangelo/internal/unix"
)

// ProcessEntry is one row of the OS process table
type ProcessEntry struct {
	// PID is the OS process id
	PID int
	// Cmdline is the full argument vector, program first
	Cmdline []string
	// Cwd is the working directory; empty when it could not be read
	Cwd string
}

// ProcessTable reads and signals OS processes
type ProcessTable interface {
	// List returns every process whose command line could be read.
	// Processes the caller may not inspect are skipped.
	List() ([]ProcessEntry, error)
	// Lookup returns the entry for one pid
	Lookup(pid int) (ProcessEntry, error)
	// Terminate asks pid to exit
	Terminate(pid int) error
	// Alive reports whether pid still exists
	Alive(pid int) bool
}

// terminate is shared by the platform tables
func terminate(pid int) error {
	if err := unix.Terminate(pid); err != nil && !unix.Gone(err) {
		return err
	}
	return nil
}

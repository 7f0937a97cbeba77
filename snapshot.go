package tangelo

import (
	"slices"
	"strconv"
)

// IDSet is a set of instance ids
type IDSet map[string]struct{}

// NewIDSet creates a set holding ids
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order, numeric ids by value
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Minus returns the ids in s that are not in o
func (s IDSet) Minus(o IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if !o.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// ForeignProcess is a tool process that was started directly rather than
// through the tool's own daemonization
type ForeignProcess struct {
	// PID is the OS process id
	PID int
	// Cmdline is the process argument vector
	Cmdline []string
	// Verb is the tool verb it was started with (start or restart)
	Verb string
}

// ID returns the registry id of the process
func (f ForeignProcess) ID() string {
	return strconv.Itoa(f.PID)
}

// ConfigArg returns the argument given to the tool's config flag, if any
func (f ForeignProcess) ConfigArg() string {
	return configFlagValue(f.Cmdline)
}

// Snapshot is one point-in-time observation of running instances. It is
// produced fresh by Probe.Snapshot and never cached.
type Snapshot struct {
	// Daemons holds the ids the tool reports as daemon-managed
	Daemons IDSet
	// Foreign maps pid strings to directly launched tool processes
	Foreign map[string]ForeignProcess
}

// IDs returns every id in the snapshot
func (s Snapshot) IDs() IDSet {
	out := make(IDSet, len(s.Daemons)+len(s.Foreign))
	for id := range s.Daemons {
		out[id] = struct{}{}
	}
	for id := range s.Foreign {
		out[id] = struct{}{}
	}
	return out
}

// sortIDs orders numeric ids by value and places other tokens after them
func sortIDs(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		switch {
		case errA == nil && errB == nil:
			return na - nb
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
}

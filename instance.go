package tangelo

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is the execution state of an instance
type Mode int

const (
	// ModeNotRunning means no process backs the instance
	ModeNotRunning Mode = iota
	// ModeStarting means a start is in flight
	ModeStarting
	// ModeRunningDaemon means the tool supervises the process
	ModeRunningDaemon
	// ModeRunningForeign means the process was launched directly
	ModeRunningForeign
	// ModeStopping means a stop is in flight
	ModeStopping
)

// Mode string constants
const (
	modeNotRunningStr     = "not-running"
	modeStartingStr       = "starting"
	modeRunningDaemonStr  = "running-daemon"
	modeRunningForeignStr = "running-foreign"
	modeStoppingStr       = "stopping"
)

// String returns the string representation of a Mode
func (m Mode) String() string {
	switch m {
	case ModeNotRunning:
		return modeNotRunningStr
	case ModeStarting:
		return modeStartingStr
	case ModeRunningDaemon:
		return modeRunningDaemonStr
	case ModeRunningForeign:
		return modeRunningForeignStr
	case ModeStopping:
		return modeStoppingStr
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText renders the mode for JSON and YAML output
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Running reports whether a live process backs the instance
func (m Mode) Running() bool {
	return m == ModeRunningDaemon || m == ModeRunningForeign
}

// CanTransition reports whether an operation may move an instance from m
// to next. Daemon and foreign execution never convert into each other
// directly; a toggle of the daemonize flag passes through NotRunning.
func (m Mode) CanTransition(next Mode) bool {
	switch m {
	case ModeNotRunning:
		return next == ModeStarting
	case ModeStarting:
		return next == ModeRunningDaemon || next == ModeRunningForeign || next == ModeNotRunning
	case ModeRunningDaemon, ModeRunningForeign:
		return next == ModeStopping
	case ModeStopping:
		return next == ModeNotRunning || next == ModeStarting
	default:
		return false
	}
}

// maxOutputBytes caps each transient output buffer of a foreign instance
const maxOutputBytes = 256 * 1024

// outputBuffer collects a foreign child's output. os/exec writes to it from
// its copy goroutine while the caller reads, so access is locked.
type outputBuffer struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - maxOutputBytes; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Close stops collecting; later writes are discarded
func (b *outputBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// foreignHandle refers to a directly launched tool process
type foreignHandle struct {
	pid     int
	cmdline []string
	// proc, stdout, stderr and done are set only for processes this
	// package spawned
	proc    Process
	stdout  *outputBuffer
	stderr  *outputBuffer
	done    chan struct{}
	waitErr error
	// stopped is set once a stop terminated the process on purpose
	stopped bool
}

// reap waits for a spawned child in the background so it never lingers as
// a zombie
func (h *foreignHandle) reap() {
	h.done = make(chan struct{})
	go func() {
		h.waitErr = h.proc.Wait()
		close(h.done)
	}()
}

func (h *foreignHandle) exited() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// exitErr returns how a spawned child ended when it exited on its own;
// nil while it runs, after a clean exit, or after a deliberate stop
func (h *foreignHandle) exitErr() error {
	if h.stopped || !h.exited() {
		return nil
	}
	return h.waitErr
}

func (h *foreignHandle) closeBuffers() {
	if h.stdout != nil {
		_ = h.stdout.Close()
	}
	if h.stderr != nil {
		_ = h.stderr.Close()
	}
}

// Instance is one tracked tangelo server. The Registry owns every Instance;
// callers outside the package see InstanceSnapshots.
type Instance struct {
	id          string
	provisional bool
	mode        Mode
	configPath  string
	config      Config
	status      DaemonStatus
	output      string
	lastErr     error
	foreign     *foreignHandle
	viewOpen    bool
}

// ID returns the daemon id, OS pid, or provisional token of the instance
func (i *Instance) ID() string {
	return i.id
}

// Mode returns the current execution mode
func (i *Instance) Mode() Mode {
	return i.mode
}

// ConfigPath returns the resolved config file path
func (i *Instance) ConfigPath() string {
	return i.configPath
}

// Config returns a copy of the cached config record
func (i *Instance) Config() Config {
	return i.config.Clone()
}

// transition moves the instance to next, refusing forbidden moves
func (i *Instance) transition(next Mode) error {
	if !i.mode.CanTransition(next) {
		return opErr(OpUnknown, i.id, ErrInvalidTransition, fmt.Errorf("%s -> %s", i.mode, next))
	}
	i.mode = next
	return nil
}

// Output returns the latest captured output, including what a spawned
// foreign process has written so far
func (i *Instance) Output() string {
	if i.foreign == nil || i.foreign.stdout == nil {
		return i.output
	}
	var b strings.Builder
	b.WriteString(i.output)
	if out := i.foreign.stdout.String(); out != "" {
		b.WriteString("\n\nstdout:\n-------\n")
		b.WriteString(out)
	}
	if out := i.foreign.stderr.String(); out != "" {
		b.WriteString("\n\nstderr:\n-------\n")
		b.WriteString(out)
	}
	return b.String()
}

// InstanceSnapshot is the read-only view of an instance handed to
// presentation code
type InstanceSnapshot struct {
	ID          string `json:"id" yaml:"id"`
	Provisional bool   `json:"provisional,omitempty" yaml:"provisional,omitempty"`
	Mode        Mode   `json:"mode" yaml:"mode"`
	ConfigPath  string `json:"config_path" yaml:"config_path"`
	Config      Config `json:"config" yaml:"config"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
	LastError   string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	Interface   string `json:"interface,omitempty" yaml:"interface,omitempty"`
	LogPath     string `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	RootPath    string `json:"root_path,omitempty" yaml:"root_path,omitempty"`
	ViewOpen    bool   `json:"view_open,omitempty" yaml:"view_open,omitempty"`
}

// Snapshot copies the instance state
func (i *Instance) Snapshot() InstanceSnapshot {
	s := InstanceSnapshot{
		ID:          i.id,
		Provisional: i.provisional,
		Mode:        i.mode,
		ConfigPath:  i.configPath,
		Config:      i.config.Clone(),
		Output:      i.Output(),
		Status:      i.status.Status,
		Interface:   i.status.Interface,
		LogPath:     i.status.LogPath,
		RootPath:    i.status.RootPath,
		ViewOpen:    i.viewOpen,
	}
	if i.lastErr != nil {
		s.LastError = i.lastErr.Error()
	}
	return s
}

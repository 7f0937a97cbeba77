package tangelo

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Env carries everything the components share: tool location, platform
// defaults, and the collaborators used to reach the tool and the OS.
// Build one with NewEnv and hand it to every component.
type Env struct {
	// ToolPath is the command used to invoke the control tool
	ToolPath string
	// ProgramName is matched against the base name of process arguments
	ProgramName string
	// InstallPrefix is the prefix under which tangelo's web root lives
	InstallPrefix string
	// HomeDir is used to expand ~ in paths
	HomeDir string
	// DefaultConfigPaths are probed in order when an instance does not
	// report a usable config path
	DefaultConfigPaths []string
	// CommandTimeout bounds every tool invocation when positive
	CommandTimeout time.Duration
	// StopGrace is how long a stop waits for a foreign process to exit
	StopGrace time.Duration
	// Concurrency bounds how many daemon status queries run at once
	Concurrency int
	// ForegroundStdout and ForegroundStderr, when set, receive a copy of
	// what spawned foreground instances write
	ForegroundStdout io.Writer
	ForegroundStderr io.Writer

	// Logger receives structured logs; discards by default
	Logger *log.Logger
	// Metrics receives counters; no-op by default
	Metrics MetricsCollector
	// Runner executes the control tool
	Runner Runner
	// Processes reads and signals the OS process table
	Processes ProcessTable
}

// EnvOption configures an Env
type EnvOption func(*Env)

// WithToolPath sets the command used to invoke the control tool
func WithToolPath(path string) EnvOption {
	return func(e *Env) {
		e.ToolPath = path
	}
}

// WithProgramName sets the program base name used to spot foreign processes
func WithProgramName(name string) EnvOption {
	return func(e *Env) {
		e.ProgramName = name
	}
}

// WithInstallPrefix sets the install prefix used for the default web root
func WithInstallPrefix(prefix string) EnvOption {
	return func(e *Env) {
		e.InstallPrefix = prefix
	}
}

// WithHomeDir sets the directory ~ expands to
func WithHomeDir(dir string) EnvOption {
	return func(e *Env) {
		e.HomeDir = dir
	}
}

// WithDefaultConfigPaths replaces the well-known config locations
func WithDefaultConfigPaths(paths ...string) EnvOption {
	return func(e *Env) {
		e.DefaultConfigPaths = paths
	}
}

// WithCommandTimeout bounds each tool invocation
func WithCommandTimeout(d time.Duration) EnvOption {
	return func(e *Env) {
		e.CommandTimeout = d
	}
}

// WithConcurrency sets how many daemon status queries run at once
func WithConcurrency(n int) EnvOption {
	return func(e *Env) {
		e.Concurrency = n
	}
}

// WithStopGrace sets how long a stop waits for a foreign process to exit
func WithStopGrace(d time.Duration) EnvOption {
	return func(e *Env) {
		e.StopGrace = d
	}
}

// WithForegroundOutput echoes the output of spawned foreground instances
// to stdout and stderr besides capturing it
func WithForegroundOutput(stdout, stderr io.Writer) EnvOption {
	return func(e *Env) {
		e.ForegroundStdout = stdout
		e.ForegroundStderr = stderr
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) EnvOption {
	return func(e *Env) {
		e.Logger = l
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m MetricsCollector) EnvOption {
	return func(e *Env) {
		e.Metrics = m
	}
}

// WithRunner sets the tool runner
func WithRunner(r Runner) EnvOption {
	return func(e *Env) {
		e.Runner = r
	}
}

// WithProcessTable sets the process table
func WithProcessTable(t ProcessTable) EnvOption {
	return func(e *Env) {
		e.Processes = t
	}
}

// NewEnv creates an Env with platform defaults
func NewEnv(opts ...EnvOption) *Env {
	home, _ := os.UserHomeDir()
	e := &Env{
		ToolPath:      DefaultToolPath,
		ProgramName:   DefaultProgramName,
		InstallPrefix: defaultInstallPrefix(),
		HomeDir:       home,
		StopGrace:     DefaultStopGrace,
		Concurrency:   DefaultConcurrency,
		DefaultConfigPaths: []string{
			"~/.config/tangelo/tangelo.conf",
			"/etc/tangelo.conf",
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.Logger == nil {
		e.Logger = log.New(io.Discard)
	}
	if e.Metrics == nil {
		e.Metrics = NewNoopMetricsCollector()
	}
	if e.Runner == nil {
		e.Runner = NewExecRunner()
	}
	if e.Processes == nil {
		e.Processes = NewProcessTable()
	}

	return e
}

// DefaultConfig returns a fresh config holding the default value of every field
func (e *Env) DefaultConfig() Config {
	return Config{
		Hostname:       "localhost",
		Port:           8080,
		Root:           filepath.Join(e.InstallPrefix, "share", "tangelo", "web"),
		LogDir:         e.ExpandPath("~/.config/tangelo"),
		VTKPython:      "",
		DropPrivileges: true,
		User:           "nobody",
		Group:          "nobody",
		Daemonize:      true,
		AccessAuth:     true,
	}
}

// ExpandPath expands a leading ~ or ~/ to the home directory
func (e *Env) ExpandPath(p string) string {
	if e.HomeDir == "" {
		return p
	}
	if p == "~" {
		return e.HomeDir
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(e.HomeDir, p[2:])
	}
	return p
}

// defaultInstallPrefix guesses the prefix tangelo was installed under from
// the location of the tool on PATH, falling back to /usr.
func defaultInstallPrefix() string {
	if prefix := os.Getenv("TANGELO_PREFIX"); prefix != "" {
		return prefix
	}
	if bin, err := exec.LookPath(DefaultToolPath); err == nil {
		return filepath.Dir(filepath.Dir(bin))
	}
	return "/usr"
}

func (e *Env) component(name string) *log.Logger {
	return e.Logger.With("component", name)
}

package tangelo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// eventLog records tool invocations and signals in the order they happen
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// index returns the position of the first entry starting with prefix, or -1
func (l *eventLog) index(prefix string) int {
	for i, e := range l.all() {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// mockDaemon is one daemon known to the simulated tool
type mockDaemon struct {
	config string
	iface  string
	log    string
	root   string
}

// MockTool simulates the tangelo control tool. Daemons live in memory;
// foreground starts become entries in the mock process table.
type MockTool struct {
	mu      sync.Mutex
	log     *eventLog
	table   *mockProcessTable
	nextID  int
	daemons map[string]*mockDaemon

	// RunErr fails every Run as if the tool could not be spawned
	RunErr error
	// SpawnErr fails every Spawn
	SpawnErr error
	// StartRegistersNothing makes start succeed without a new daemon id
	StartRegistersNothing bool
	// StartRegistersTwo makes start register two daemon ids
	StartRegistersTwo bool
	// HideConfig makes status report an empty config attribute
	HideConfig bool
	// Listing overrides the diagnostic output of status --pids
	Listing string
}

func newMockTool(table *mockProcessTable, log *eventLog) *MockTool {
	return &MockTool{
		log:     log,
		table:   table,
		nextID:  101,
		daemons: make(map[string]*mockDaemon),
	}
}

// addDaemon registers a daemon as if it was started before the test
func (m *MockTool) addDaemon(configPath string, port int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addDaemonLocked(configPath, port)
}

func (m *MockTool) addDaemonLocked(configPath string, port int) string {
	if m.daemons == nil {
		m.daemons = make(map[string]*mockDaemon)
	}
	if m.nextID == 0 {
		m.nextID = 101
	}
	id := strconv.Itoa(m.nextID)
	m.nextID++
	m.daemons[id] = &mockDaemon{
		config: configPath,
		iface:  "localhost:" + strconv.Itoa(port),
		log:    "/var/log/tangelo/tangelo.log",
		root:   "/srv/tangelo",
	}
	return id
}

// registerDaemon lists id as a daemon, as when the tool adopts a process
// that is already running
func (m *MockTool) registerDaemon(id, configPath string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daemons == nil {
		m.daemons = make(map[string]*mockDaemon)
	}
	m.daemons[id] = &mockDaemon{
		config: configPath,
		iface:  "localhost:" + strconv.Itoa(port),
		log:    "/var/log/tangelo/tangelo.log",
		root:   "/srv/tangelo",
	}
}

func (m *MockTool) removeDaemon(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.daemons, id)
}

func (m *MockTool) daemonIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.daemons))
	for id := range m.daemons {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (m *MockTool) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	m.log.add("run %s", strings.Join(args, " "))
	if m.RunErr != nil {
		return CommandResult{}, m.RunErr
	}
	if err := ctx.Err(); err != nil {
		return CommandResult{}, err
	}
	if len(args) == 0 {
		return CommandResult{ExitCode: 2}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch args[0] {
	case verbStatus:
		return m.status(args[1:]), nil

	case verbStart:
		path := argAfter(args, flagConfig)
		if m.StartRegistersNothing {
			return CommandResult{Stderr: []byte("starting tangelo...\n"), ExitCode: 1}, nil
		}
		m.addDaemonLocked(path, portOf(path))
		if m.StartRegistersTwo {
			m.addDaemonLocked(path, portOf(path))
		}
		return CommandResult{Stderr: []byte("starting tangelo...success\n")}, nil

	case verbStop:
		id := argAfter(args, flagPid)
		if _, ok := m.daemons[id]; !ok {
			return CommandResult{Stderr: []byte("no such instance\n"), ExitCode: 1}, nil
		}
		delete(m.daemons, id)
		if pid, err := strconv.Atoi(id); err == nil && m.table != nil {
			m.table.kill(pid)
		}
		return CommandResult{Stderr: []byte("stopping tangelo...success\n")}, nil

	case verbRestart:
		id := argAfter(args, flagPid)
		path := argAfter(args, flagConfig)
		delete(m.daemons, id)
		m.addDaemonLocked(path, portOf(path))
		return CommandResult{Stderr: []byte("restarting tangelo...success\n")}, nil
	}
	return CommandResult{ExitCode: 2}, nil
}

func (m *MockTool) status(args []string) CommandResult {
	if len(args) > 0 && args[0] == flagPids {
		if m.Listing != "" {
			return CommandResult{Stderr: []byte(m.Listing)}
		}
		if len(m.daemons) == 0 {
			return CommandResult{Stderr: []byte("no tangelo instances running\n")}
		}
		ids := make([]string, 0, len(m.daemons))
		for id := range m.daemons {
			ids = append(ids, id)
		}
		sortIDs(ids)
		return CommandResult{Stderr: []byte("tangelo instances:" + strings.Join(ids, ",") + "\n")}
	}

	id := argAfter(args, flagPid)
	d, ok := m.daemons[id]
	if !ok {
		return CommandResult{ExitCode: 1}
	}
	var value string
	switch argAfter(args, flagAttr) {
	case AttrStatus:
		value = "running"
	case AttrInterface:
		value = d.iface
	case AttrConfig:
		if !m.HideConfig {
			value = d.config
		}
	case AttrLog:
		value = d.log
	case AttrRoot:
		value = d.root
	}
	return CommandResult{Stdout: []byte(value + "\n")}
}

func (m *MockTool) Spawn(name string, args []string, stdout, stderr io.Writer) (Process, error) {
	m.log.add("spawn %s", strings.Join(args, " "))
	if m.SpawnErr != nil {
		return nil, m.SpawnErr
	}
	proc := m.table.spawn(append([]string{name}, args...))
	fmt.Fprintf(stdout, "serving %s\n", argAfter(args, flagConfig))
	fmt.Fprintln(stderr, "tangelo started in the foreground")
	return proc, nil
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// portOf reads the port a config file asks for
func portOf(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 8080
	}
	c, _, err := decodeConfig(data, Config{Port: 8080})
	if err != nil {
		return 8080
	}
	return c.Port
}

// mockProcess is a foreground tool process that runs until signalled
type mockProcess struct {
	pid  int
	once sync.Once
	done chan struct{}
	err  error
}

func (p *mockProcess) Pid() int { return p.pid }

func (p *mockProcess) Signal(sig os.Signal) error {
	p.exit()
	return nil
}

func (p *mockProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *mockProcess) exit() {
	p.once.Do(func() { close(p.done) })
}

// mockProcessTable is an in-memory OS process table
type mockProcessTable struct {
	mu      sync.Mutex
	log     *eventLog
	nextPID int
	entries map[int]ProcessEntry
	procs   map[int]*mockProcess

	// ListErr fails List
	ListErr error
}

func newMockProcessTable(log *eventLog) *mockProcessTable {
	return &mockProcessTable{
		log: log,
		// above any real pid_max so the test binary is never matched
		nextPID: 5_000_000,
		entries: make(map[int]ProcessEntry),
		procs:   make(map[int]*mockProcess),
	}
}

// add inserts a process that was not spawned through the tool
func (t *mockProcessTable) add(cwd string, cmdline ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.nextPID
	t.nextPID++
	t.entries[pid] = ProcessEntry{PID: pid, Cmdline: cmdline, Cwd: cwd}
	return pid
}

func (t *mockProcessTable) spawn(cmdline []string) *mockProcess {
	pid := t.add("", cmdline...)
	p := &mockProcess{pid: pid, done: make(chan struct{})}
	t.mu.Lock()
	t.procs[pid] = p
	t.mu.Unlock()
	return p
}

// kill removes a process as if it crashed
func (t *mockProcessTable) kill(pid int) {
	t.mu.Lock()
	p := t.procs[pid]
	delete(t.entries, pid)
	t.mu.Unlock()
	if p != nil {
		p.exit()
	}
}

// crash removes a spawned process as if it exited with err
func (t *mockProcessTable) crash(pid int, err error) {
	t.mu.Lock()
	p := t.procs[pid]
	delete(t.entries, pid)
	t.mu.Unlock()
	if p != nil {
		p.once.Do(func() {
			p.err = err
			close(p.done)
		})
	}
}

func (t *mockProcessTable) List() ([]ProcessEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ListErr != nil {
		return nil, t.ListErr
	}
	out := make([]ProcessEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b ProcessEntry) int { return a.PID - b.PID })
	return out, nil
}

func (t *mockProcessTable) Lookup(pid int) (ProcessEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[pid]
	if !ok {
		return ProcessEntry{}, errors.New("no such process")
	}
	return e, nil
}

func (t *mockProcessTable) Terminate(pid int) error {
	t.log.add("terminate %d", pid)
	t.kill(pid)
	return nil
}

func (t *mockProcessTable) Alive(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[pid]
	return ok
}

// testSystem bundles a Controller with the simulated tool and process table
type testSystem struct {
	dir   string
	log   *eventLog
	tool  *MockTool
	table *mockProcessTable
	env   *Env
	ctl   *Controller
}

func newTestSystem(dir string, opts ...EnvOption) *testSystem {
	log := &eventLog{}
	table := newMockProcessTable(log)
	tool := newMockTool(table, log)
	base := []EnvOption{
		WithHomeDir(dir),
		WithInstallPrefix(dir),
		WithDefaultConfigPaths(),
		WithRunner(tool),
		WithProcessTable(table),
		WithStopGrace(0),
	}
	env := NewEnv(append(base, opts...)...)
	return &testSystem{
		dir:   dir,
		log:   log,
		tool:  tool,
		table: table,
		env:   env,
		ctl:   NewController(env),
	}
}

package tangelo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Probe queries the control tool and the OS for running instances. Every
// call observes the system afresh; nothing is cached between calls.
type Probe struct {
	env    *Env
	logger *log.Logger
}

// NewProbe creates a Probe
func NewProbe(env *Env) *Probe {
	return &Probe{
		env:    env,
		logger: env.component("probe"),
	}
}

// DaemonStatus holds the attributes the tool reports for one daemon id
type DaemonStatus struct {
	ID         string
	Status     string
	Interface  string
	ConfigPath string
	LogPath    string
	RootPath   string
}

// Overlay converts the reported attributes into config values
func (d DaemonStatus) Overlay() Overlay {
	o := Overlay{Root: d.RootPath}
	if d.LogPath != "" {
		o.LogDir = filepath.Dir(d.LogPath)
	}
	if d.Interface != "" {
		host, port, err := net.SplitHostPort(d.Interface)
		if err != nil {
			// Tolerate a bare "host:port" without IPv6 brackets
			if i := strings.LastIndex(d.Interface, ":"); i >= 0 {
				host, port = d.Interface[:i], d.Interface[i+1:]
			}
		}
		o.Hostname = host
		if n, err := strconv.Atoi(port); err == nil && n > 0 && n <= MaxPort {
			o.Port = n
		}
	}
	return o
}

// run invokes the tool, applying the Env command timeout
func (p *Probe) run(ctx context.Context, op Operation, path string, args ...string) (CommandResult, error) {
	return runTool(ctx, p.env, p.logger, op, path, args...)
}

func runTool(ctx context.Context, env *Env, logger *log.Logger, op Operation, path string, args ...string) (CommandResult, error) {
	if env.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.CommandTimeout)
		defer cancel()
	}

	logger.Debug("running tool", "cmd", commandLine(env.ToolPath, args))
	res, err := env.Runner.Run(ctx, env.ToolPath, args...)
	if err != nil {
		return res, opErr(op, path, ErrCommunication, err)
	}
	if res.ExitCode != 0 {
		logger.Debug("tool exited non-zero", "cmd", commandLine(env.ToolPath, args), "code", res.ExitCode)
	}
	return res, nil
}

// ListDaemonIDs returns the ids the tool currently reports as daemons
func (p *Probe) ListDaemonIDs(ctx context.Context) (IDSet, error) {
	res, err := p.run(ctx, OpListDaemons, "", verbStatus, flagPids)
	if err != nil {
		return nil, err
	}

	ids, err := parseDaemonIDs(res.Stderr)
	if err != nil {
		return nil, opErr(OpListDaemons, "", ErrProtocol, err)
	}
	return ids, nil
}

// parseDaemonIDs interprets the diagnostic output of `status --pids`
func parseDaemonIDs(diag []byte) (IDSet, error) {
	text := strings.TrimLeft(string(diag), " \t\r\n")
	if strings.HasPrefix(text, NoInstancesSentinel) {
		return NewIDSet(), nil
	}

	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return nil, errors.New("empty instance listing")
	}

	_, csv, ok := strings.Cut(first, ":")
	if !ok {
		return nil, fmt.Errorf("unrecognized instance listing %q", first)
	}

	ids := NewIDSet()
	for _, field := range strings.Split(csv, ",") {
		if id := strings.TrimSpace(field); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// ListForeignProcesses scans the process table for tool processes started
// with start or restart that are not among daemons
func (p *Probe) ListForeignProcesses(ctx context.Context, daemons IDSet) (map[string]ForeignProcess, error) {
	entries, err := p.env.Processes.List()
	if errors.Is(err, errors.ErrUnsupported) {
		p.logger.Debug("process table unavailable; no foreign instances", "err", err)
		return map[string]ForeignProcess{}, nil
	}
	if err != nil {
		return nil, opErr(OpListForeign, "", ErrCommunication, err)
	}

	self := os.Getpid()
	found := make(map[string]ForeignProcess)
	for _, e := range entries {
		if e.PID == self {
			continue
		}
		fp := ForeignProcess{PID: e.PID, Cmdline: e.Cmdline}
		if daemons.Has(fp.ID()) {
			continue
		}
		verb, ok := toolVerb(e.Cmdline, p.env.ProgramName)
		if !ok || (verb != verbStart && verb != verbRestart) {
			continue
		}
		fp.Verb = verb
		found[fp.ID()] = fp
	}
	return found, nil
}

// Snapshot observes daemon ids and foreign processes
func (p *Probe) Snapshot(ctx context.Context) (Snapshot, error) {
	daemons, err := p.ListDaemonIDs(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	foreign, err := p.ListForeignProcesses(ctx, daemons)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Daemons: daemons, Foreign: foreign}, nil
}

// StatusOf queries every attribute of one daemon id. A query the tool
// answers with a non-zero exit and no value fails with ErrCommunication.
func (p *Probe) StatusOf(ctx context.Context, id string) (DaemonStatus, error) {
	st := DaemonStatus{ID: id}
	fields := []struct {
		attr string
		dst  *string
	}{
		{AttrStatus, &st.Status},
		{AttrInterface, &st.Interface},
		{AttrConfig, &st.ConfigPath},
		{AttrLog, &st.LogPath},
		{AttrRoot, &st.RootPath},
	}

	for _, f := range fields {
		res, err := p.run(ctx, OpStatus, id, verbStatus, flagPid, id, flagAttr, f.attr)
		if err != nil {
			return DaemonStatus{}, err
		}
		out := strings.TrimSpace(string(res.Stdout))
		if res.ExitCode != 0 && out == "" {
			// the id left the listing after it was taken
			return DaemonStatus{}, opErr(OpStatus, id, ErrCommunication,
				fmt.Errorf("%s %s exited with code %d", verbStatus, f.attr, res.ExitCode))
		}
		line, _, _ := strings.Cut(out, "\n")
		*f.dst = strings.TrimSpace(line)
	}
	return st, nil
}

// Lookup returns the process table entry for an id that is an OS pid
func (p *Probe) Lookup(id string) (ProcessEntry, error) {
	pid, err := strconv.Atoi(id)
	if err != nil {
		return ProcessEntry{}, fmt.Errorf("id %q is not a process id", id)
	}
	return p.env.Processes.Lookup(pid)
}

// toolVerb finds the tool program in an argument vector and returns the
// first positional argument after it
func toolVerb(cmdline []string, program string) (string, bool) {
	for i, arg := range cmdline {
		if filepath.Base(arg) != program {
			continue
		}
		for _, next := range cmdline[i+1:] {
			if strings.HasPrefix(next, "-") {
				continue
			}
			return next, true
		}
		return "", false
	}
	return "", false
}

// configFlagValue returns the argument that follows -c or --config
func configFlagValue(cmdline []string) string {
	for i, arg := range cmdline {
		switch {
		case arg == flagConfig || arg == flagConfigL:
			if i+1 < len(cmdline) {
				return cmdline[i+1]
			}
			return ""
		case strings.HasPrefix(arg, flagConfigL+"="):
			return strings.TrimPrefix(arg, flagConfigL+"=")
		}
	}
	return ""
}

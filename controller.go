package tangelo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Controller runs start, stop and restart as short sequences of config
// writes and tool invocations. Config edits are persisted before any
// external command, a stop always precedes a start when an instance
// changes between daemon and foreign execution, and the registry is
// reconciled after every operation. Controller is not safe for concurrent
// use.
type Controller struct {
	env      *Env
	store    *ConfigStore
	probe    *Probe
	registry *Registry
	logger   *log.Logger
}

// NewController wires a ConfigStore, Probe and Registry around env
func NewController(env *Env) *Controller {
	store := NewConfigStore(env)
	probe := NewProbe(env)
	return &Controller{
		env:      env,
		store:    store,
		probe:    probe,
		registry: NewRegistry(env, probe, store),
		logger:   env.component("controller"),
	}
}

// Registry returns the registry the controller reconciles
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Store returns the config store used for persisting edits
func (c *Controller) Store() *ConfigStore {
	return c.store
}

// Refresh reconciles the registry against the live system
func (c *Controller) Refresh(ctx context.Context) ([]InstanceSnapshot, error) {
	_, err := c.registry.Reconcile(ctx)
	return c.registry.Instances(), err
}

// Start launches the config at path. A missing file starts from the
// defaults. With autodetectPort an unused port is picked and written into
// the config; another process may still claim it before the server binds.
func (c *Controller) Start(ctx context.Context, path string, autodetectPort bool) (InstanceSnapshot, error) {
	begin := time.Now()
	inst, err := c.start(ctx, path, autodetectPort)
	err = c.finish(ctx, OpStart, begin, err)
	if inst == nil {
		return InstanceSnapshot{}, err
	}
	return inst.Snapshot(), err
}

func (c *Controller) start(ctx context.Context, path string, autodetectPort bool) (*Instance, error) {
	cfg, err := c.store.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if autodetectPort {
		port, err := freePort()
		if err != nil {
			return nil, opErr(OpStart, path, ErrCommunication, fmt.Errorf("finding a free port: %w", err))
		}
		c.logger.Debug("autodetected port", "path", path, "port", port)
		cfg.Port = port
	}

	if err := c.store.Save(cfg, path); err != nil {
		return nil, err
	}

	inst := &Instance{
		id:          ProvisionalPrefix + uuid.NewString(),
		provisional: true,
		mode:        ModeNotRunning,
		configPath:  path,
		config:      c.store.Normalize(cfg.Omitted()),
	}
	if err := c.transition(inst, ModeStarting); err != nil {
		return nil, err
	}
	c.registry.insert(inst)

	if err := c.launch(ctx, inst, OpStart, ""); err != nil {
		c.abort(inst, err)
		return inst, err
	}
	return inst, nil
}

// Stop stops the instance with id. The config file is not touched.
func (c *Controller) Stop(ctx context.Context, id string) (InstanceSnapshot, error) {
	begin := time.Now()
	inst, err := c.registry.lookup(id)
	if err == nil {
		err = c.stop(ctx, inst, OpStop)
	}
	err = c.finish(ctx, OpStop, begin, err)
	if inst == nil {
		return InstanceSnapshot{}, err
	}
	return inst.Snapshot(), err
}

func (c *Controller) stop(ctx context.Context, inst *Instance, op Operation) error {
	from := inst.mode
	if !from.Running() {
		return opErr(op, inst.id, ErrInvalidTransition, fmt.Errorf("instance is %s", from))
	}
	if err := c.transition(inst, ModeStopping); err != nil {
		return err
	}

	switch from {
	case ModeRunningForeign:
		h := inst.foreign
		if h == nil {
			return opErr(op, inst.id, ErrProtocol, errors.New("foreign instance has no process handle"))
		}
		if err := c.env.Processes.Terminate(h.pid); err != nil {
			return opErr(op, inst.id, ErrCommunication, err)
		}
		h.stopped = true
		if !c.waitExit(ctx, h) {
			c.logger.Warn("foreign instance still running after SIGTERM", "id", inst.id, "grace", c.env.StopGrace)
		}
		h.closeBuffers()

	case ModeRunningDaemon:
		args := []string{verbStop, flagPid, inst.id, flagVerbose}
		res, err := runTool(ctx, c.env, c.logger, op, inst.id, args...)
		if err != nil {
			return err
		}
		inst.output = c.outputText(args, res, inst.config)
		if res.ExitCode != 0 {
			c.logger.Warn("stop exited non-zero", "id", inst.id, "code", res.ExitCode)
		}
	}

	c.logger.Info("instance stopped", "id", inst.id, "mode", from)
	return c.transition(inst, ModeNotRunning)
}

// Restart persists newConfig for the instance and relaunches it. When the
// instance is alive and newConfig changes whether it runs as a daemon, it
// is stopped first. A live foreign instance is always stopped before its
// replacement is spawned.
func (c *Controller) Restart(ctx context.Context, id string, newConfig Config) (InstanceSnapshot, error) {
	begin := time.Now()
	inst, err := c.registry.lookup(id)
	if err == nil {
		err = c.restart(ctx, inst, newConfig)
	}
	err = c.finish(ctx, OpRestart, begin, err)
	if inst == nil {
		return InstanceSnapshot{}, err
	}
	return inst.Snapshot(), err
}

func (c *Controller) restart(ctx context.Context, inst *Instance, newConfig Config) error {
	path := inst.configPath
	if err := c.store.Save(newConfig, path); err != nil {
		return err
	}
	inst.config = c.store.Normalize(newConfig.Omitted())

	prevID := inst.id
	alive := inst.mode.Running()
	modeChange := alive && newConfig.Daemonize != (inst.mode == ModeRunningDaemon)

	if alive && (modeChange || inst.mode == ModeRunningForeign) {
		c.logger.Info("stopping before relaunch", "id", prevID, "mode", inst.mode, "daemonize", newConfig.Daemonize)
		if err := c.stop(ctx, inst, OpRestart); err != nil {
			return err
		}
	}

	if inst.mode.Running() {
		// in-place daemon restart; the tool stops and starts it
		if err := c.transition(inst, ModeStopping); err != nil {
			return err
		}
	}
	if err := c.transition(inst, ModeStarting); err != nil {
		return err
	}

	if err := c.launch(ctx, inst, OpRestart, prevID); err != nil {
		c.abort(inst, err)
		return err
	}
	return nil
}

// launch starts a Starting instance the way its config asks for
func (c *Controller) launch(ctx context.Context, inst *Instance, op Operation, prevID string) error {
	if inst.config.Daemonize {
		return c.launchDaemon(ctx, inst, op, prevID)
	}
	return c.launchForeign(inst, op)
}

// launchForeign runs the tool in the foreground as a child. Its pid becomes
// the instance id and its output goes to the instance's buffers, never to
// the server log.
func (c *Controller) launchForeign(inst *Instance, op Operation) error {
	args := []string{verbStart, flagConfig, inst.configPath, flagVerbose}
	stdout, stderr := &outputBuffer{}, &outputBuffer{}

	c.logger.Debug("spawning tool", "cmd", commandLine(c.env.ToolPath, args))
	proc, err := c.env.Runner.Spawn(c.env.ToolPath, args,
		tee(stdout, c.env.ForegroundStdout), tee(stderr, c.env.ForegroundStderr))
	if err != nil {
		return opErr(op, inst.configPath, ErrCommunication, err)
	}

	h := &foreignHandle{
		pid:     proc.Pid(),
		cmdline: append([]string{c.env.ToolPath}, args...),
		proc:    proc,
		stdout:  stdout,
		stderr:  stderr,
	}
	h.reap()

	inst.foreign = h
	inst.output = commandLine(c.env.ToolPath, args)
	inst.lastErr = nil
	inst.status = DaemonStatus{ID: strconv.Itoa(h.pid), Status: statusForeign}
	if err := c.transition(inst, ModeRunningForeign); err != nil {
		return err
	}
	c.registry.rekey(inst, strconv.Itoa(h.pid))

	c.logger.Info("instance started", "id", inst.id, "mode", inst.mode, "config", inst.configPath)
	return nil
}

// launchDaemon asks the tool to start or restart a daemon and finds the id
// it registered by diffing the daemon listing around the call. The restart
// verb is used only while the prior id is still a live daemon.
func (c *Controller) launchDaemon(ctx context.Context, inst *Instance, op Operation, prevID string) error {
	before, err := c.probe.ListDaemonIDs(ctx)
	if err != nil {
		return err
	}

	restarting := prevID != "" && before.Has(prevID)
	args := []string{verbStart, flagConfig, inst.configPath, flagVerbose}
	if restarting {
		args = []string{verbRestart, flagPid, prevID, flagConfig, inst.configPath, flagVerbose}
	}

	res, err := runTool(ctx, c.env, c.logger, op, inst.configPath, args...)
	if err != nil {
		return err
	}
	inst.output = c.outputText(args, res, inst.config)

	after, err := c.probe.ListDaemonIDs(ctx)
	if err != nil {
		return err
	}

	fresh := after.Minus(before).Sorted()
	var id string
	switch {
	case len(fresh) == 1:
		id = fresh[0]
	case len(fresh) == 0 && restarting && after.Has(prevID):
		id = prevID
	case len(fresh) == 0:
		return opErr(op, inst.configPath, ErrProtocol,
			fmt.Errorf("no new daemon id after %s (exit code %d)", args[0], res.ExitCode))
	default:
		return opErr(op, inst.configPath, ErrProtocol,
			fmt.Errorf("%d new daemon ids after %s: %s", len(fresh), args[0], strings.Join(fresh, ",")))
	}

	inst.foreign = nil
	inst.lastErr = nil
	inst.status = DaemonStatus{ID: id}
	if err := c.transition(inst, ModeRunningDaemon); err != nil {
		return err
	}
	c.registry.rekey(inst, id)

	c.logger.Info("instance started", "id", id, "mode", inst.mode, "verb", args[0], "config", inst.configPath)
	return nil
}

// abort records a failed launch; the next reconcile decides what remains
func (c *Controller) abort(inst *Instance, err error) {
	inst.lastErr = err
	if inst.mode == ModeStarting {
		_ = c.transition(inst, ModeNotRunning)
	}
	c.logger.Warn("launch failed", "id", inst.id, "config", inst.configPath, "err", err)
}

// finish reconciles after an operation and records its metrics. An
// operation error takes precedence. Failures confined to single instances
// are left on those instances; only a failed snapshot is returned.
func (c *Controller) finish(ctx context.Context, op Operation, begin time.Time, err error) error {
	_, rerr := c.registry.Reconcile(ctx)

	c.env.Metrics.LifecycleOperation(op, time.Since(begin), err)
	if err != nil {
		c.env.Metrics.Error(op, ErrorKind(err))
		if rerr != nil {
			c.logger.Warn("reconcile after failed operation", "op", op, "err", rerr)
		}
		return err
	}

	var merr *MultiError
	if errors.As(rerr, &merr) {
		c.logger.Warn("reconcile reported instance errors", "op", op, "count", len(merr.Errors), "err", merr)
		return nil
	}
	return rerr
}

func (c *Controller) transition(inst *Instance, next Mode) error {
	from := inst.mode
	if err := inst.transition(next); err != nil {
		return err
	}
	c.env.Metrics.ModeTransition(from, next)
	return nil
}

// Wait blocks until the foreground child spawned for id exits or ctx is
// done, and returns how the child ended. Only children spawned by this
// Controller can be waited for. Wait does not reconcile.
func (c *Controller) Wait(ctx context.Context, id string) error {
	inst, err := c.registry.lookup(id)
	if err != nil {
		return err
	}
	h := inst.foreign
	if h == nil || h.done == nil {
		return opErr(OpWait, id, ErrInvalidTransition, errors.New("instance was not spawned by this process"))
	}
	select {
	case <-h.done:
		if h.stopped {
			return nil
		}
		return h.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitExit waits up to StopGrace for a terminated foreign process to go
func (c *Controller) waitExit(ctx context.Context, h *foreignHandle) bool {
	if c.env.StopGrace <= 0 {
		return h.exited() || !c.env.Processes.Alive(h.pid)
	}

	timer := time.NewTimer(c.env.StopGrace)
	defer timer.Stop()

	if h.done != nil {
		select {
		case <-h.done:
			return true
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !c.env.Processes.Alive(h.pid) {
			return true
		}
		select {
		case <-ticker.C:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// outputText is the text shown after a tool invocation: the command, its
// diagnostic output, then the server log of the instance
func (c *Controller) outputText(args []string, res CommandResult, cfg Config) string {
	var b strings.Builder
	b.WriteString(commandLine(c.env.ToolPath, args))
	b.WriteString("\n\n")
	b.Write(res.Stderr)
	b.WriteString("\n\n" + LogFileName + ":\n-----------\n")

	logPath := filepath.Join(cfg.LogDir, LogFileName)
	data, err := os.ReadFile(logPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(&b, "%s doesn't exist.", logPath)
	case err != nil:
		fmt.Fprintf(&b, "%s: %v", logPath, err)
	default:
		if over := len(data) - maxOutputBytes; over > 0 {
			data = data[over:]
		}
		b.Write(data)
	}
	return b.String()
}

// Close releases the output buffers of foreign processes that have exited
func (c *Controller) Close() error {
	for _, inst := range c.registry.instances {
		if inst.foreign != nil && inst.foreign.exited() {
			inst.foreign.closeBuffers()
		}
	}
	return nil
}

// tee copies a child's output to echo as well. A failing echo never
// stops the capture.
func tee(buf *outputBuffer, echo io.Writer) io.Writer {
	if echo == nil {
		return buf
	}
	return io.MultiWriter(buf, quietWriter{echo})
}

type quietWriter struct {
	w io.Writer
}

func (q quietWriter) Write(p []byte) (int, error) {
	_, _ = q.w.Write(p)
	return len(p), nil
}

// freePort asks the OS for an unused TCP port and releases it at once
func freePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

package tangelo

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// statusGone is reported for an instance kept only because a view is open
const statusGone = "not running"

// statusForeign is reported for instances the tool does not supervise
const statusForeign = "running (not daemonized)"

// ReconcileResult lists what a reconcile changed
type ReconcileResult struct {
	// Added holds ids that became tracked
	Added []string
	// Removed holds ids that stopped being tracked
	Removed []string
}

// Changed reports whether the reconcile created or destroyed any instance
func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Registry owns the set of tracked instances and keeps it in line with what
// the Probe observes. It is not safe for concurrent use.
type Registry struct {
	env       *Env
	probe     *Probe
	store     *ConfigStore
	logger    *log.Logger
	instances map[string]*Instance
}

// NewRegistry creates an empty Registry
func NewRegistry(env *Env, probe *Probe, store *ConfigStore) *Registry {
	return &Registry{
		env:       env,
		probe:     probe,
		store:     store,
		logger:    env.component("registry"),
		instances: make(map[string]*Instance),
	}
}

// Reconcile takes a fresh snapshot and brings the registry in line with it.
// Instances absent from the snapshot are dropped unless a view holds them
// open; new ids become instances with their config loaded; the rest are
// refreshed. If the snapshot itself cannot be taken, the registry is left
// untouched. Failures specific to one instance are collected in a
// *MultiError while the others reconcile normally. Reconcile never writes
// to disk.
func (r *Registry) Reconcile(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()

	snap, err := r.probe.Snapshot(ctx)
	if err != nil {
		r.env.Metrics.ReconcileDuration(time.Since(start), err)
		r.env.Metrics.Error(OpReconcile, ErrorKind(err))
		return ReconcileResult{}, err
	}

	res, err := r.apply(ctx, snap)
	r.env.Metrics.ReconcileDuration(time.Since(start), err)
	r.env.Metrics.TrackedInstances(len(r.instances))
	if err != nil {
		for _, e := range err.(*MultiError).Errors {
			r.env.Metrics.Error(OpReconcile, ErrorKind(e))
		}
		return res, err
	}
	return res, nil
}

func (r *Registry) apply(ctx context.Context, snap Snapshot) (ReconcileResult, error) {
	current := snap.IDs()
	merr := &MultiError{}
	var res ReconcileResult

	batch := r.probe.StatusMany(ctx, snap.Daemons.Sorted())

	for _, id := range r.ids() {
		inst := r.instances[id]
		if current.Has(id) {
			continue
		}
		if inst.viewOpen {
			r.markGone(inst)
			continue
		}
		var exitErr error
		if inst.foreign != nil {
			inst.foreign.closeBuffers()
			exitErr = inst.foreign.exitErr()
		}
		delete(r.instances, id)
		res.Removed = append(res.Removed, id)
		if exitErr != nil {
			r.logger.Warn("instance removed", "id", id, "exit", exitErr)
		} else {
			r.logger.Info("instance removed", "id", id)
		}
	}

	added := NewIDSet()
	for _, id := range current.Sorted() {
		if _, ok := r.instances[id]; ok {
			continue
		}
		inst, err := r.track(ctx, id, snap, batch)
		merr.Add(err)
		if inst == nil {
			continue
		}
		r.instances[id] = inst
		added[id] = struct{}{}
		res.Added = append(res.Added, id)
		r.env.Metrics.InstanceAdded(inst.mode)
		r.logger.Info("instance added", "id", id, "mode", inst.mode, "config", inst.configPath)
	}

	for _, id := range r.ids() {
		if added.Has(id) || !current.Has(id) {
			continue
		}
		merr.Add(r.refresh(ctx, r.instances[id], snap, batch))
	}

	if len(res.Removed) > 0 {
		r.env.Metrics.InstancesRemoved(len(res.Removed))
	}
	return res, merr.Err()
}

// track builds an Instance for an id that just appeared. A nil Instance
// means the id could not be tracked this time; a non-nil Instance with an
// error means it is tracked with a fallback config.
func (r *Registry) track(ctx context.Context, id string, snap Snapshot, batch StatusBatch) (*Instance, error) {
	if fp, ok := snap.Foreign[id]; ok && !snap.Daemons.Has(id) {
		inst := &Instance{
			id:      id,
			mode:    ModeRunningForeign,
			status:  DaemonStatus{ID: id, Status: statusForeign},
			foreign: &foreignHandle{pid: fp.PID, cmdline: fp.Cmdline},
		}
		path, err := r.resolveConfigPath(id, "")
		if err != nil {
			return nil, err
		}
		return r.loadInto(inst, path, Overlay{})
	}

	st, err := r.statusOf(ctx, id, batch)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		id:     id,
		mode:   ModeRunningDaemon,
		status: st,
	}
	path, err := r.resolveConfigPath(id, st.ConfigPath)
	if err != nil {
		return nil, err
	}
	return r.loadInto(inst, path, st.Overlay())
}

func (r *Registry) loadInto(inst *Instance, path string, overlay Overlay) (*Instance, error) {
	inst.configPath = path
	cfg, err := r.store.LoadWithOverlay(path, overlay)
	if err != nil {
		r.logger.Warn("config unreadable; using defaults", "id", inst.id, "path", path, "err", err)
		inst.config = r.fallbackConfig(overlay)
		inst.lastErr = err
		return inst, err
	}
	inst.config = cfg
	return inst, nil
}

// fallbackConfig is the default config with any live values applied
func (r *Registry) fallbackConfig(o Overlay) Config {
	c := r.env.DefaultConfig()
	if o.Hostname != "" {
		c.Hostname = o.Hostname
	}
	if o.Port > 0 {
		c.Port = o.Port
	}
	if o.Root != "" {
		c.Root = o.Root
	}
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
	return r.store.Normalize(c)
}

// resolveConfigPath finds the config file of a running instance. The path
// the tool reports wins when it exists. Otherwise the argument after the
// config flag on the process's own command line is tried, then the
// well-known default locations. Guessing beyond that is refused.
func (r *Registry) resolveConfigPath(id, reported string) (string, error) {
	if reported != "" && r.store.Exists(reported) {
		return reported, nil
	}

	if entry, err := r.probe.Lookup(id); err == nil {
		if arg := configFlagValue(entry.Cmdline); arg != "" {
			p := r.env.ExpandPath(arg)
			if !filepath.IsAbs(p) && entry.Cwd != "" {
				p = filepath.Join(entry.Cwd, p)
			}
			if r.store.Exists(p) {
				r.logger.Debug("config path from command line", "id", id, "path", p)
				return p, nil
			}
		}
	}

	for _, candidate := range r.env.DefaultConfigPaths {
		p := r.env.ExpandPath(candidate)
		if r.store.Exists(p) {
			r.logger.Debug("config path from default location", "id", id, "path", p)
			return p, nil
		}
	}

	return "", opErr(OpResolve, id, ErrProtocol, fmt.Errorf("no usable config path (tool reported %q)", reported))
}

// refresh updates the runtime attributes of an instance still present in
// the snapshot. An id that moved between the daemon listing and the process
// table gets the handle of its new side; a foreign instance that stays
// foreign keeps its output buffers.
func (r *Registry) refresh(ctx context.Context, inst *Instance, snap Snapshot, batch StatusBatch) error {
	inst.provisional = false

	if snap.Daemons.Has(inst.id) {
		st, err := r.statusOf(ctx, inst.id, batch)
		if err != nil {
			inst.lastErr = err
			return err
		}
		if inst.foreign != nil {
			r.logger.Info("instance adopted as daemon", "id", inst.id)
			inst.foreign.closeBuffers()
			inst.foreign = nil
		}
		inst.status = st
		inst.mode = ModeRunningDaemon
		return nil
	}

	fp := snap.Foreign[inst.id]
	if inst.foreign == nil || inst.foreign.pid != fp.PID {
		if inst.mode == ModeRunningDaemon {
			r.logger.Info("daemon no longer listed; tracking its process", "id", inst.id, "pid", fp.PID)
		}
		inst.foreign = &foreignHandle{pid: fp.PID, cmdline: fp.Cmdline}
	}
	inst.mode = ModeRunningForeign
	inst.status = DaemonStatus{ID: inst.id, Status: statusForeign}
	return nil
}

// statusOf takes the status of id from batch, querying it directly when
// the batch did not cover it
func (r *Registry) statusOf(ctx context.Context, id string, batch StatusBatch) (DaemonStatus, error) {
	if st, ok := batch.Statuses[id]; ok {
		return st, nil
	}
	if err, ok := batch.Errors[id]; ok {
		return DaemonStatus{}, err
	}
	return r.probe.StatusOf(ctx, id)
}

// markGone records that a view-held instance no longer runs
func (r *Registry) markGone(inst *Instance) {
	if inst.mode != ModeNotRunning {
		r.logger.Info("instance gone; kept while its view is open", "id", inst.id)
	}
	inst.mode = ModeNotRunning
	inst.status.Status = statusGone
	if inst.foreign != nil {
		inst.foreign.closeBuffers()
		if err := inst.foreign.exitErr(); err != nil {
			inst.lastErr = opErr(OpReconcile, inst.id, ErrCommunication, fmt.Errorf("foreground process exited: %w", err))
		}
	}
}

// OpenView marks an instance as displayed so Reconcile keeps it even after
// its process disappears
func (r *Registry) OpenView(id string) error {
	inst, err := r.lookup(id)
	if err != nil {
		return err
	}
	inst.viewOpen = true
	return nil
}

// ReleaseView clears the view marker. A released instance that is absent
// from the next snapshot is removed by that Reconcile.
func (r *Registry) ReleaseView(id string) error {
	inst, err := r.lookup(id)
	if err != nil {
		return err
	}
	inst.viewOpen = false
	return nil
}

// Get returns a snapshot of one instance
func (r *Registry) Get(id string) (InstanceSnapshot, bool) {
	inst, ok := r.instances[id]
	if !ok {
		return InstanceSnapshot{}, false
	}
	return inst.Snapshot(), true
}

// Instances returns snapshots of every tracked instance ordered by id
func (r *Registry) Instances() []InstanceSnapshot {
	out := make([]InstanceSnapshot, 0, len(r.instances))
	for _, id := range r.ids() {
		out = append(out, r.instances[id].Snapshot())
	}
	return out
}

// Len returns the number of tracked instances
func (r *Registry) Len() int {
	return len(r.instances)
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (r *Registry) lookup(id string) (*Instance, error) {
	inst, ok := r.instances[id]
	if !ok {
		return nil, opErr(OpUnknown, id, ErrUnknownInstance, nil)
	}
	return inst, nil
}

// insert starts tracking an instance created by a lifecycle operation
func (r *Registry) insert(inst *Instance) {
	r.instances[inst.id] = inst
}

// rekey moves an instance to the id the system assigned it. An instance
// already tracked under that id is replaced, keeping its view marker.
func (r *Registry) rekey(inst *Instance, id string) {
	if inst.id == id {
		return
	}
	delete(r.instances, inst.id)
	if prev, ok := r.instances[id]; ok && prev != inst && prev.viewOpen {
		inst.viewOpen = true
	}
	inst.id = id
	inst.provisional = false
	r.instances[id] = inst
}

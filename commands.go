package tangelo

import "context"

// Command is a request from presentation code to the Controller
type Command interface {
	// Operation identifies the command for logs and metrics
	Operation() Operation
	execute(ctx context.Context, c *Controller) Result
}

// Result is the Controller's answer to a Command. Instance is set for
// commands that target one instance; Instances always holds the registry
// contents after the command's reconcile.
type Result struct {
	Instance  *InstanceSnapshot
	Instances []InstanceSnapshot
	Err       error
}

// StartCommand launches a config file
type StartCommand struct {
	Path           string
	AutodetectPort bool
}

// StopCommand stops a tracked instance
type StopCommand struct {
	ID string
}

// RestartCommand relaunches a tracked instance with a new config
type RestartCommand struct {
	ID     string
	Config Config
}

// RefreshCommand reconciles the registry without changing anything
type RefreshCommand struct{}

// Operation implements Command
func (StartCommand) Operation() Operation { return OpStart }

// Operation implements Command
func (StopCommand) Operation() Operation { return OpStop }

// Operation implements Command
func (RestartCommand) Operation() Operation { return OpRestart }

// Operation implements Command
func (RefreshCommand) Operation() Operation { return OpReconcile }

func (cmd StartCommand) execute(ctx context.Context, c *Controller) Result {
	snap, err := c.Start(ctx, cmd.Path, cmd.AutodetectPort)
	return c.result(snap, err)
}

func (cmd StopCommand) execute(ctx context.Context, c *Controller) Result {
	snap, err := c.Stop(ctx, cmd.ID)
	return c.result(snap, err)
}

func (cmd RestartCommand) execute(ctx context.Context, c *Controller) Result {
	snap, err := c.Restart(ctx, cmd.ID, cmd.Config)
	return c.result(snap, err)
}

func (RefreshCommand) execute(ctx context.Context, c *Controller) Result {
	instances, err := c.Refresh(ctx)
	return Result{Instances: instances, Err: err}
}

func (c *Controller) result(snap InstanceSnapshot, err error) Result {
	res := Result{Instances: c.registry.Instances(), Err: err}
	if snap.ID != "" {
		res.Instance = &snap
	}
	return res
}

// Execute runs cmd and returns the resulting state or error
func (c *Controller) Execute(ctx context.Context, cmd Command) Result {
	c.logger.Debug("executing command", "op", cmd.Operation())
	return cmd.execute(ctx, c)
}

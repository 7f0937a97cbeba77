package tangelo

import (
	"io/fs"
	"time"
)

// Tool and file constants
const (
	// DefaultToolPath is the command used to invoke the tangelo control tool
	DefaultToolPath = "tangelo"

	// DefaultProgramName is the base name matched against process command
	// lines when looking for foreign instances
	DefaultProgramName = "tangelo"

	// LogFileName is the name of the server log inside a config's logdir
	LogFileName = "tangelo.log"

	// ConfigHeader is the comment line written at the top of saved configs
	ConfigHeader = "// Tangelo config file auto-generated by tangelo-wrapper."

	// CommentPrefix marks a config line that is stripped before parsing
	CommentPrefix = "//"

	// NoInstancesSentinel prefixes the status listing when nothing runs
	NoInstancesSentinel = "no tangelo instances"

	// ProvisionalPrefix prefixes the token of an instance whose id is not
	// known yet
	ProvisionalPrefix = "starting-"

	// DefaultStopGrace bounds the wait for a terminated foreign process
	DefaultStopGrace = 5 * time.Second

	// DefaultWaitDelay bounds how long a tool invocation's output is read
	// after the tool exits or is cancelled
	DefaultWaitDelay = time.Second

	// DefaultConcurrency is the number of daemon status queries run at once
	DefaultConcurrency = 1

	// DefaultWatchDebounce is the debounce applied to config file events
	DefaultWatchDebounce = 25 * time.Millisecond
)

// Tool verbs and flags
const (
	verbStatus  = "status"
	verbStart   = "start"
	verbStop    = "stop"
	verbRestart = "restart"

	flagPids    = "--pids"
	flagPid     = "--pid"
	flagAttr    = "--attr"
	flagConfig  = "-c"
	flagConfigL = "--config"
	flagVerbose = "--verbose"
)

// Status attributes understood by `tangelo status --pid <id> --attr <name>`
const (
	AttrStatus    = "status"
	AttrInterface = "interface"
	AttrConfig    = "config"
	AttrLog       = "log"
	AttrRoot      = "root"
)

// File modes
const (
	// DirMode is the mode for directories created next to a config
	DirMode = 0o755

	// FileMode is the mode for written config files
	FileMode fs.FileMode = 0o644
)

// Operation identifies what the library was doing when an error occurred
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpLoad reads a config file
	OpLoad
	// OpSave writes a config file
	OpSave
	// OpWatch watches a config file
	OpWatch
	// OpListDaemons queries the daemon id listing
	OpListDaemons
	// OpListForeign scans the process table
	OpListForeign
	// OpStatus queries attributes of one daemon id
	OpStatus
	// OpResolve resolves the config path of an instance
	OpResolve
	// OpReconcile diffs the registry against a snapshot
	OpReconcile
	// OpStart launches an instance
	OpStart
	// OpStop stops an instance
	OpStop
	// OpRestart restarts an instance, possibly across a mode change
	OpRestart
	// OpWait waits for a spawned foreground instance to exit
	OpWait
)

// Operation string constants
const (
	opUnknownStr     = "unknown"
	opLoadStr        = "load"
	opSaveStr        = "save"
	opWatchStr       = "watch"
	opListDaemonsStr = "list-daemons"
	opListForeignStr = "list-foreign"
	opStatusStr      = "status"
	opResolveStr     = "resolve"
	opReconcileStr   = "reconcile"
	opStartStr       = "start"
	opStopStr        = "stop"
	opRestartStr     = "restart"
	opWaitStr        = "wait"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpLoad:
		return opLoadStr
	case OpSave:
		return opSaveStr
	case OpWatch:
		return opWatchStr
	case OpListDaemons:
		return opListDaemonsStr
	case OpListForeign:
		return opListForeignStr
	case OpStatus:
		return opStatusStr
	case OpResolve:
		return opResolveStr
	case OpReconcile:
		return opReconcileStr
	case OpStart:
		return opStartStr
	case OpStop:
		return opStopStr
	case OpRestart:
		return opRestartStr
	case OpWait:
		return opWaitStr
	default:
		return opUnknownStr
	}
}

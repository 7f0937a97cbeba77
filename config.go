package tangelo

import (
	"bytes"
	"encoding/json"
	"maps"
)

// Config keys as they appear in a tangelo config file
const (
	KeyHostname       = "hostname"
	KeyPort           = "port"
	KeyRoot           = "root"
	KeyLogDir         = "logdir"
	KeyVTKPython      = "vtkpython"
	KeyDropPrivileges = "drop_privileges"
	KeyUser           = "user"
	KeyGroup          = "group"
	KeyDaemonize      = "daemonize"
	KeyAccessAuth     = "access_auth"
)

// configKeys is the order known keys are written in
var configKeys = []string{
	KeyHostname,
	KeyPort,
	KeyRoot,
	KeyLogDir,
	KeyVTKPython,
	KeyDropPrivileges,
	KeyUser,
	KeyGroup,
	KeyDaemonize,
	KeyAccessAuth,
}

// MaxPort is the largest valid port number
const MaxPort = 65535

// Config is one tangelo instance configuration record
type Config struct {
	Hostname       string `json:"hostname" yaml:"hostname"`
	Port           int    `json:"port" yaml:"port"`
	Root           string `json:"root" yaml:"root"`
	LogDir         string `json:"logdir" yaml:"logdir"`
	VTKPython      string `json:"vtkpython" yaml:"vtkpython"`
	DropPrivileges bool   `json:"drop_privileges" yaml:"drop_privileges"`
	User           string `json:"user" yaml:"user"`
	Group          string `json:"group" yaml:"group"`
	Daemonize      bool   `json:"daemonize" yaml:"daemonize"`
	AccessAuth     bool   `json:"access_auth" yaml:"access_auth"`

	// Extra holds keys this package does not interpret; they are written
	// back unchanged on save
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

// Clone returns a copy that shares nothing with c
func (c Config) Clone() Config {
	if c.Extra != nil {
		c.Extra = maps.Clone(c.Extra)
	}
	return c
}

// Equal reports whether two configs hold the same values
func (c Config) Equal(o Config) bool {
	if c.Hostname != o.Hostname ||
		c.Port != o.Port ||
		c.Root != o.Root ||
		c.LogDir != o.LogDir ||
		c.VTKPython != o.VTKPython ||
		c.DropPrivileges != o.DropPrivileges ||
		c.User != o.User ||
		c.Group != o.Group ||
		c.Daemonize != o.Daemonize ||
		c.AccessAuth != o.AccessAuth {
		return false
	}
	return maps.EqualFunc(c.Extra, o.Extra, func(a, b json.RawMessage) bool {
		return bytes.Equal(a, b)
	})
}

// Omitted returns c with the persist rules applied: empty strings vanish
// and user/group are dropped when privileges are kept.
func (c Config) Omitted() Config {
	c = c.Clone()
	if !c.DropPrivileges {
		c.User = ""
		c.Group = ""
	}
	return c
}

// Overlay carries live values reported by a running instance. Non-zero
// fields fill config keys that are absent from the file.
type Overlay struct {
	Hostname string
	Port     int
	Root     string
	LogDir   string
}

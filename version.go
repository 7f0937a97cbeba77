package tangelo

// Version is the current version of the go-tangelo library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Tool is the control tool the library drives
	Tool string
	// ConfigFormat names the config file dialect read and written
	ConfigFormat string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:      Version,
		Tool:         DefaultToolPath,
		ConfigFormat: "json+comments",
	}
}

// Package version holds the module's identity constants. No other
// package reads them: the client's Hello carries its own version string
// and neither CLI has a --version flag.
package version

const (
	Version      = "0.1.0"
	Product      = "snapsync"
	Manufacturer = "snapsync"
)

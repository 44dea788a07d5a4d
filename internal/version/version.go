// ABOUTME: Build identity reported to servers in session/hello
// ABOUTME: Version can be overridden at link time with -ldflags -X
package version

// Version is the client version, set by the release build
var Version = "0.3.0"

const (
	Product      = "Resonate Live"
	Manufacturer = "Resonate"
)

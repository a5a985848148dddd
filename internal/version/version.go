// Package version provides build and version information for the lockbox.
package version

// Version is the current release version of the lockbox firmware.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/ncuskey/solid-couscous/internal/version.Version=x.y.z"
var Version = "1.0.0"

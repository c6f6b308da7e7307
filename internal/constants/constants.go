// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// DefaultEnvFile is the optional file of DSD_* overrides read at startup.
const DefaultEnvFile = ".env"

//go:build debug && !trace
// +build debug,!trace

package build

// LogLevel specifies the level of the stdout logger of development builds.
const LogLevel = "debug"

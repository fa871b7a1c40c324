// Package monitoring holds the swappable package-level logger used by
// components that log outside the engine's ops/diag/trace streams, such
// as database migrations.
package monitoring

import "log"

// Logf defaults to log.Printf but may be replaced by SetLogger. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Package monitoring carries the diagnostic loggers shared by the renderer
// packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug turns Debugf output on or off. Off by default.
func SetDebug(on bool) { debug.Store(on) }

// DebugEnabled reports whether Debugf currently logs.
func DebugEnabled() bool { return debug.Load() }

// Debugf logs through Logf when debug output is enabled. Per-track render
// diagnostics go here so the render loop stays quiet by default.
func Debugf(format string, v ...interface{}) {
	if !debug.Load() {
		return
	}
	Logf("[debug] "+format, v...)
}

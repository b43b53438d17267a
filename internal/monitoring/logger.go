package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc func(format string, v ...interface{})

var logger atomic.Pointer[logFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf is the package-level diagnostic logger used by the spectrum packages.
// It forwards to log.Printf unless replaced with SetLogger. Fillers log from
// their own goroutines, so the sink is swapped atomically.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	fn := logFunc(f)
	logger.Store(&fn)
}

// Mute silences the logger and returns a function restoring the previous one.
// Tests use it as `defer monitoring.Mute()()`.
func Mute() func() {
	prev := logger.Load()
	SetLogger(nil)
	return func() { logger.Store(prev) }
}

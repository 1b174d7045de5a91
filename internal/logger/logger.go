package logger

import "sync"

// Level strings accepted in configuration.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	global *Logger
	once   sync.Once
)

// Get returns the process-wide logger. The level is applied on the first
// call only; later callers share the same instance regardless of what they
// pass.
func Get(level string) *Logger {
	once.Do(func() { global = newZapLogger(level) })
	return global
}

// Component returns a child logger tagged with a subsystem name, so lines
// from the burner, relays, sensors and regulator are distinguishable in a
// single merged stream.
func (l *Logger) Component(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

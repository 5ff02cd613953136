package observe

import (
	"fmt"
	"strings"
)

// BadgerLogger adapts a Logger to Badger's logging interface so the
// envelope store's database logs flow through the same pipeline as
// everything else.
type BadgerLogger struct {
	l *Logger
}

// NewBadgerLogger wraps the given logger for use as a badger.Logger.
func NewBadgerLogger(l *Logger) *BadgerLogger {
	return &BadgerLogger{l: l.Named("badger")}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(trimf(format, args...))
}

func (b *BadgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(trimf(format, args...))
}

func (b *BadgerLogger) Infof(format string, args ...interface{}) {
	b.l.Info(trimf(format, args...))
}

func (b *BadgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(trimf(format, args...))
}

// trimf formats and strips the trailing newline Badger includes.
func trimf(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

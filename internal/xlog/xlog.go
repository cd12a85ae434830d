// Package xlog provides the small set of logging helpers used throughout
// teleop. It wraps go-kit/log the same way the teacher's vendored
// webpa-common/logging package does: named, leveled child loggers plus
// two well-known keys for the message and the error.
package xlog

import (
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// MessageKey is the structured logging key for a human-readable message.
func MessageKey() string { return "msg" }

// ErrorKey is the structured logging key for an error value.
func ErrorKey() string { return "error" }

// Info returns a child logger that tags entries at the info level.
func Info(l kitlog.Logger) kitlog.Logger { return level.Info(l) }

// Error returns a child logger that tags entries at the error level.
func Error(l kitlog.Logger) kitlog.Logger { return level.Error(l) }

// Debug returns a child logger that tags entries at the debug level.
func Debug(l kitlog.Logger) kitlog.Logger { return level.Debug(l) }

// Warn returns a child logger that tags entries at the warn level.
func Warn(l kitlog.Logger) kitlog.Logger { return level.Warn(l) }

// New builds the base logger teleop uses everywhere: JSON output, with the
// standard timestamp and caller fields teleop's logs are keyed on.
func New() kitlog.Logger {
	l := kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stdout))
	l = kitlog.With(l, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
	return l
}

// Package logging is the shared logger for all treecast components. It
// keeps the terse single-line style the rest of the code expects while
// routing everything through logrus so operators get levels and
// timestamps for free.
package logging

import (
	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Infof logs an informational line, e.g. a join or a successful reunion.
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warnf logs a recoverable problem: a dropped frame, a stale link, a
// misrouted packet. Nothing here is fatal.
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// WithField returns an entry tagged with a single structured field, for
// call sites that report about one peer or one packet type.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

// SetLevel adjusts the global verbosity.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

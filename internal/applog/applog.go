// Package applog wires logrus the way the rest of the pack does: a
// single configured logger, component loggers carved off it with
// WithField, structured fields instead of Printf-style messages.
package applog

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root operational logger. It writes to stderr, and when
// w is non-nil to stderr and w both. The server.log activity file is
// written separately, by NewActivity.
func New(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if w != nil {
		l.SetOutput(io.MultiWriter(os.Stderr, w))
	}
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Component returns a child logger tagged with the subsystem name, the
// way a per-module logger factory would in a larger service.
func Component(base *logrus.Logger, name string) *logrus.Entry {
	return base.WithField("component", name)
}

// activityFormatter renders spec.md §6.3's server.log line shape —
// `[YYYY-MM-DD HH:MM:SS] <event>` — instead of logrus's usual
// TextFormatter layout. Fields beyond "event" are appended as
// key=value, same convention the rest of the pack uses for structured
// extras that don't fit the bracket prefix.
type activityFormatter struct{}

func (activityFormatter) Format(e *logrus.Entry) ([]byte, error) {
	line := "[" + e.Time.Format("2006-01-02 15:04:05") + "] " + e.Message
	for k, v := range e.Data {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return append([]byte(line), '\n'), nil
}

// NewActivity builds the append-only activity log sink spec.md §2
// names as a sibling used by every layer: significant events, one
// bracketed line each, written to w (typically server.log).
func NewActivity(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(activityFormatter{})
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	return l
}

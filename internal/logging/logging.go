// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stdout.  Unknown levels fall back
// to info; format "json" selects the JSON formatter, anything else text.
func New(level, format string) *logrus.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Discard returns a logger that drops everything.  Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

package logflags

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used by every layer of the adapter.
// Session loggers carry a "session" field so that the logs of successive
// clients of a multi-session server can be told apart.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debug(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// LoggerFactory builds the Logger of a layer. Fields holds the layer
// name; out is the --log-dest destination, nil for stderr.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory replaces the logrus based default for loggers created
// afterwards. Embedders use it to route adapter logs into their own sink.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

// Fields are attached to every entry of a Logger.
type Fields map[string]interface{}

// logrusLogger adapts a logrus entry; With* results stay Loggers.
type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{l.Entry.WithField(key, value)}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.Entry.WithError(err)}
}

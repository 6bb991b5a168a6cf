// Package observability bridges the relay library's Logger interface to a
// process-wide logrus logger.
package observability

import (
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
}

// InitLogger sets the global log level. Unknown levels fall back to info.
func InitLogger(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
}

// GetLogger returns the shared logrus logger.
func GetLogger() *logrus.Logger {
	return logger
}

// RelayLogger implements msgrelay.Logger on top of the shared logger.
type RelayLogger struct{}

func (l *RelayLogger) Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func (l *RelayLogger) Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func (l *RelayLogger) Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func (l *RelayLogger) Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

func (l *RelayLogger) Info(message string) {
	logger.Info(message)
}

package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. An explicit level wins; otherwise dev
// environments log at debug and everything else at info.
func NewLogger(c Config) *logrus.Logger {
	return newLogger(c, os.Stdout)
}

func newLogger(c Config, out io.Writer) *logrus.Logger {
	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(out)

	level := logrus.InfoLevel
	if c.IsDev() {
		level = logrus.DebugLevel
	}
	if c.Log.Level != "" {
		if parsed, err := logrus.ParseLevel(c.Log.Level); err == nil {
			level = parsed
		} else {
			logg.WithField("level", c.Log.Level).Warn("unknown log level, keeping default")
		}
	}
	logg.SetLevel(level)
	return logg
}

// LogError records a failure with the module and function it happened in.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

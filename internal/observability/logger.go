package observability

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
}

// InitLogger sets the level and format ("json" or "text") of the bus logger.
func InitLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

// SetOutput redirects the bus logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func GetLogger() *logrus.Logger {
	return logger
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

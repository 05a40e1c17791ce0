package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Verbosity runs from 0 (fatal) to 5 (trace).
func New(out io.Writer, format string, verbosity int) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	switch format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q, expected text or json", format)
	}

	if verbosity < 0 || verbosity > 5 {
		return nil, fmt.Errorf("log verbosity must be between 0 and 5, got %d", verbosity)
	}
	logger.SetLevel(levels[verbosity])
	return logger, nil
}

var levels = [...]logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

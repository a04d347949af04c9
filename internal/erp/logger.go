package erp

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the JSON logger. The TUI owns the terminal, so output goes
// to ERP_LOG_FILE or nowhere. The returned func closes the file.
func NewLogger(cfg *Config) (*logrus.Logger, func() error, error) {
	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(io.Discard)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logg.SetLevel(level)

	closer := func() error { return nil }
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open log file: %w", err)
		}
		logg.SetOutput(file)
		closer = file.Close
	}
	return logg, closer, nil
}

// DiscardLogger is used where no logger was wired.
func DiscardLogger() *logrus.Logger {
	logg := logrus.New()
	logg.SetOutput(io.Discard)
	return logg
}

func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	Level        string // debug, info, warn, error
	Format       string // json, text
	Output       string // stdout, file, both
	FilePath     string
	MaxSize      int // MB
	MaxBackups   int
	MaxAge       int // days
	Compress     bool
	EnableCaller bool
}

// NewLogger builds a logrus logger writing to stdout and/or a rotating file.
func NewLogger(opts LogOptions) *logrus.Logger {
	logger := logrus.New()

	if opts.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(opts.EnableCaller)

	var writers []io.Writer
	if opts.Output == "" || opts.Output == "stdout" || opts.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if (opts.Output == "file" || opts.Output == "both") && opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger
}

// NewDiscardLogger returns a logger that drops everything, for tests.
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// LogError logs err with the module and function it came from.
func LogError(logger logrus.FieldLogger, moduleName, funcName, context string, data any, err error) {
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

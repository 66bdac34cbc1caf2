package main

import (
	"strings"

	"go.uber.org/zap"
)

// zapGooseLogger routes goose output through zap.
type zapGooseLogger struct {
	log *zap.SugaredLogger
}

func (l zapGooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

func (l zapGooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

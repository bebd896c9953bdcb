package logger

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	ctxKeyLog ctxKey = iota
)

var std = logrus.NewEntry(logrus.StandardLogger())

// Entry returns the entry stored in ctx, or one on the standard logger.
func Entry(ctx context.Context) *logrus.Entry {
	v := ctx.Value(ctxKeyLog)
	e, ok := v.(*logrus.Entry)
	if !ok {
		return std
	}
	return e
}

func WithLogEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKeyLog, e)
}

// New returns a logger at the named level; unknown names mean info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

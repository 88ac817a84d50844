// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package logadapter adapts third-party loggers to the tti.Logger interface.
//
// Example:
//
//	log := logrus.New()
//	log.SetLevel(logrus.DebugLevel)
//	ps, _ := tti.NewPL(1, tti.WithLogger(logadapter.NewLogrus(log)))
package logadapter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	tti "github.com/netascode/go-tti"
)

// MissingValue is logged for a key without a value
const MissingValue = "<MISSING>"

// fields converts alternating keys and values to a map. Non-string keys
// are formatted with %v.
func fields(keysAndValues []any) map[string]any {
	f := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			f[key] = keysAndValues[i+1]
		} else {
			f[key] = MissingValue
		}
	}
	return f
}

// Logrus logs through a logrus.FieldLogger
type Logrus struct {
	log logrus.FieldLogger
}

var _ tti.Logger = (*Logrus)(nil)

// NewLogrus wraps a *logrus.Logger or *logrus.Entry
func NewLogrus(log logrus.FieldLogger) *Logrus {
	return &Logrus{log: log}
}

func (l *Logrus) entry(keysAndValues []any) *logrus.Entry {
	return l.log.WithFields(logrus.Fields(fields(keysAndValues)))
}

// Debug logs at debug level
func (l *Logrus) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	l.entry(keysAndValues).WithContext(ctx).Debug(msg)
}

// Info logs at info level
func (l *Logrus) Info(ctx context.Context, msg string, keysAndValues ...any) {
	l.entry(keysAndValues).WithContext(ctx).Info(msg)
}

// Warn logs at warning level
func (l *Logrus) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	l.entry(keysAndValues).WithContext(ctx).Warn(msg)
}

// Error logs at error level
func (l *Logrus) Error(ctx context.Context, msg string, keysAndValues ...any) {
	l.entry(keysAndValues).WithContext(ctx).Error(msg)
}

// Zerolog logs through a zerolog.Logger
type Zerolog struct {
	log zerolog.Logger
}

var _ tti.Logger = (*Zerolog)(nil)

// NewZerolog wraps a zerolog.Logger
func NewZerolog(log zerolog.Logger) *Zerolog {
	return &Zerolog{log: log}
}

func (l *Zerolog) write(ctx context.Context, ev *zerolog.Event, msg string, keysAndValues []any) {
	if ev == nil {
		return
	}
	ev.Ctx(ctx).Fields(fields(keysAndValues)).Msg(msg)
}

// Debug logs at debug level
func (l *Zerolog) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	l.write(ctx, l.log.Debug(), msg, keysAndValues)
}

// Info logs at info level
func (l *Zerolog) Info(ctx context.Context, msg string, keysAndValues ...any) {
	l.write(ctx, l.log.Info(), msg, keysAndValues)
}

// Warn logs at warning level
func (l *Zerolog) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	l.write(ctx, l.log.Warn(), msg, keysAndValues)
}

// Error logs at error level
func (l *Zerolog) Error(ctx context.Context, msg string, keysAndValues ...any) {
	l.write(ctx, l.log.Error(), msg, keysAndValues)
}

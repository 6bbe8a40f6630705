// Copyright 2023 The neon-proxy-go Authors
// This file is part of the neon-proxy-go library.
//
// The neon-proxy-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The neon-proxy-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the neon-proxy-go library. If not, see <http://www.gnu.org/licenses/>.

// Package nlog provides the structured, per-module logger used across the
// proxy. The call shape (New(module) + key/value pairs) follows the
// per-module logger idiom; the backing implementation is
// go.uber.org/zap's SugaredLogger.
package nlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured, leveled logger bound to one module name.
type Logger struct {
	sugar  *zap.SugaredLogger
	module string
}

var (
	mu      sync.Mutex
	root    *zap.Logger
	modules = make(map[string]*Logger)
)

func init() {
	root = newRoot(zapcore.InfoLevel)
}

func newRoot(level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core)
}

// SetLevel reconfigures the process-wide minimum log level. Existing
// *Logger handles keep working; they share the root core.
func SetLevel(level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	root = newRoot(level)
	for name, l := range modules {
		l.sugar = root.Named(name).Sugar()
	}
}

// New returns (creating if needed) the logger for the given module name.
func New(module string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := modules[module]; ok {
		return l
	}
	l := &Logger{sugar: root.Named(module).Sugar(), module: module}
	modules[module] = l
	return l
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Crit logs at error level and terminates the process, mirroring the
// convention for unrecoverable startup failures.
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.sugar.Errorw(msg, kv...)
	os.Exit(1)
}

// With returns a child logger with additional persistent key/value context
// (e.g. a chain-id or reindex_ident) attached to every line it logs.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(kv...), module: l.module}
}

// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bloblog adapts slog to the printf style logger the blob backends
// and badger expect
package bloblog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

type Logger struct {
	logger  *slog.Logger
	backend string
}

// New returns a logger that tags every message with the blob backend. A nil
// logger discards everything
func New(logger *slog.Logger, backend string) *Logger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Logger{logger: logger, backend: backend}
}

func (l *Logger) Infof(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Warningf(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Debugf(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) Errorf(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(
		ctx,
		level,
		fmt.Sprintf(msg, args...),
		"component", "database",
		"backend", l.backend,
	)
}

// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package kernlog is the kernel's structured logger: one process-wide
// slog.Logger, built at boot from the active Config, that every other
// package logs through instead of talking to slog directly.
package kernlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities, spaced the way slog spaces its own built-in levels so
// that TRACE can sit below DEBUG and OFF above ERROR.
const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelOff     = slog.Level(12)
)

// Severity names accepted in configuration and flag values.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// RotateConfig controls lumberjack-backed log-file rotation.
type RotateConfig struct {
	MaxFileSizeMB  int
	BackupFileCount int
	Compress        bool
}

// DefaultRotateConfig matches the teacher's defaults for log rotation.
func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 10, BackupFileCount: 2, Compress: false}
}

// FileConfig describes where and how the logger should persist to disk.
// An empty FilePath means "stderr only".
type FileConfig struct {
	FilePath string
	Format   string // "text" or "json"; "" defaults to "json"
	Severity string
	Rotate   RotateConfig
}

type loggerFactory struct {
	file      io.WriteCloser
	sysWriter io.Writer
	format    string
	level     *slog.LevelVar
}

var (
	defaultLoggerFactory = &loggerFactory{
		format: "json",
		level:  new(slog.LevelVar),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
)

// severityName maps a slog.Level back to one of our named severities so
// log lines always show TRACE/DEBUG/INFO/WARNING/ERROR rather than slog's
// default "DEBUG+N" spelling for levels it doesn't know about.
func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return TRACE
	case l < LevelInfo:
		return DEBUG
	case l < LevelWarning:
		return INFO
	case l < LevelError:
		return WARNING
	default:
		return ERROR
	}
}

// createJsonOrTextHandler builds a slog.Handler in either text or json form,
// prefixing every message with prefix (used by tests to disambiguate which
// logger a captured line came from).
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			lvl, _ := a.Value.Any().(slog.Level)
			a.Key = "severity"
			a.Value = slog.StringValue(severityName(lvl))
		case slog.MessageKey:
			a.Key = "message"
			a.Value = slog.StringValue(prefix + a.Value.String())
		case slog.TimeKey:
			if f.format == "json" {
				t, _ := a.Value.Any().(time.Time)
				a.Key = "timestamp"
				a.Value = slog.GroupValue(
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())),
				)
			} else {
				a.Key = "time"
				a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
			}
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replace}
	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// setLoggingLevel maps a severity name onto a slog.LevelVar.
func setLoggingLevel(severity string, programLevel *slog.LevelVar) {
	switch severity {
	case TRACE:
		programLevel.Set(LevelTrace)
	case DEBUG:
		programLevel.Set(LevelDebug)
	case INFO:
		programLevel.Set(LevelInfo)
	case WARNING:
		programLevel.Set(LevelWarning)
	case ERROR:
		programLevel.Set(LevelError)
	case OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// SetLogFormat switches the default logger between "text" and "json" output.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(currentWriter(), defaultLoggerFactory.level, ""))
}

func currentWriter() io.Writer {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file
	}
	return os.Stderr
}

// InitLogFile points the default logger at a rotating log file per cfg. If
// cfg.FilePath is empty the logger keeps writing to stderr.
func InitLogFile(cfg FileConfig) error {
	setLoggingLevel(cfg.Severity, defaultLoggerFactory.level)
	if cfg.Format != "" {
		defaultLoggerFactory.format = cfg.Format
	}

	if cfg.FilePath == "" {
		defaultLoggerFactory.file = nil
		defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
		return nil
	}

	rotate := cfg.Rotate
	if rotate == (RotateConfig{}) {
		rotate = DefaultRotateConfig()
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    rotate.MaxFileSizeMB,
		MaxBackups: rotate.BackupFileCount,
		Compress:   rotate.Compress,
	}
	defaultLoggerFactory.file = lj
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(lj, defaultLoggerFactory.level, ""))
	return nil
}

// Close flushes and closes the active log file, if any.
func Close() error {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file.Close()
	}
	return nil
}

func logAt(level slog.Level, format string, v ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Tracef logs at TRACE severity, for per-sector/per-tick detail that is
// noisy even at DEBUG.
func Tracef(format string, v ...any) { logAt(LevelTrace, format, v...) }

// Debugf logs at DEBUG severity.
func Debugf(format string, v ...any) { logAt(LevelDebug, format, v...) }

// Infof logs at INFO severity.
func Infof(format string, v ...any) { logAt(LevelInfo, format, v...) }

// Warnf logs at WARNING severity.
func Warnf(format string, v ...any) { logAt(LevelWarning, format, v...) }

// Errorf logs at ERROR severity.
func Errorf(format string, v ...any) { logAt(LevelError, format, v...) }

// Copyright 2025 Kadir Pekel
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

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

var defaultLogger *slog.Logger

const codegatePackagePrefix = "github.com/kadirpekel/codegate"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown strings default to info.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}

// gatewayHandler renders records as "LEVEL message k=v ..." with optional
// timestamp and ANSI colors, and suppresses third-party library records
// unless the level is debug.
type gatewayHandler struct {
	writer   io.Writer
	minLevel slog.Level
	useColor bool
	withTime bool
	attrs    []slog.Attr
}

func (h *gatewayHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *gatewayHandler) Handle(_ context.Context, record slog.Record) error {
	// Third-party records pass only in debug mode. The filter keys off the
	// caller's package path rather than a logger name because libraries log
	// through the process-wide default.
	if h.minLevel > slog.LevelDebug && !fromCodegate(record.PC) {
		return nil
	}

	var buf strings.Builder
	if h.withTime && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format(time.DateTime))
		buf.WriteString(" ")
	}

	levelStr := strings.ToUpper(record.Level.String())
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	if h.useColor {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	for _, a := range h.attrs {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *gatewayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &gatewayHandler{
		writer:   h.writer,
		minLevel: h.minLevel,
		useColor: h.useColor,
		withTime: h.withTime,
		attrs:    merged,
	}
}

func (h *gatewayHandler) WithGroup(string) slog.Handler { return h }

// fromCodegate reports whether the record was produced inside this module.
func fromCodegate(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), codegatePackagePrefix) ||
		strings.Contains(file, "codegate/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(file *os.File) bool {
	if fileInfo, err := file.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// Init configures the process-wide default logger.
// format: "simple" (level + message, the default) or "verbose"
// (timestamp + level + message). Color is enabled when output is a terminal.
func Init(level slog.Level, output *os.File, format string) {
	handler := &gatewayHandler{
		writer:   output,
		minLevel: level,
		useColor: isTerminal(output),
		withTime: format == "verbose",
	}
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates a log file at the specified path.
// Returns the file handle and a cleanup function.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// GetLogger returns the default slog logger, initializing it lazily.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}

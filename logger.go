package main

import (
	"fmt"
	"log"
	"strings"

	"lkas-service/gwm"
)

// LeveledLogger wraps a standard logger with log level filtering
type LeveledLogger struct {
	logger   *log.Logger
	logLevel LogLevel
	prefix   string
}

// NewLeveledLogger creates a new leveled logger
func NewLeveledLogger(logger *log.Logger, level LogLevel) *LeveledLogger {
	return &LeveledLogger{
		logger:   logger,
		logLevel: level,
	}
}

// Named returns a logger sharing the output and level that tags every line
// with a component name.
func (l *LeveledLogger) Named(component string) *LeveledLogger {
	return &LeveledLogger{
		logger:   l.logger,
		logLevel: l.logLevel,
		prefix:   l.prefix + component + ": ",
	}
}

func (l *LeveledLogger) output(level LogLevel, tag, format string, v ...interface{}) {
	if l.logLevel >= level {
		l.logger.Printf("["+tag+"] "+l.prefix+format, v...)
	}
}

// Debug logs a message at DEBUG level
func (l *LeveledLogger) Debug(format string, v ...interface{}) {
	l.output(LogLevelDebug, "DEBUG", format, v...)
}

// Info logs a message at INFO level
func (l *LeveledLogger) Info(format string, v ...interface{}) {
	l.output(LogLevelInfo, "INFO", format, v...)
}

// Warn logs a message at WARN level
func (l *LeveledLogger) Warn(format string, v ...interface{}) {
	l.output(LogLevelWarn, "WARN", format, v...)
}

// Error logs a message at ERROR level
func (l *LeveledLogger) Error(format string, v ...interface{}) {
	l.output(LogLevelError, "ERROR", format, v...)
}

// Printf provides compatibility with standard logger - logs at INFO level
func (l *LeveledLogger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

// Fatalf logs a fatal error and exits
func (l *LeveledLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf("[FATAL] "+l.prefix+format, v...)
}

// DebugCAN logs CAN frame details at DEBUG level
func (l *LeveledLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	if l.logLevel < LogLevelDebug {
		return
	}
	var sb strings.Builder
	for i := 0; i < int(length) && i < len(data) && i < 8; i++ {
		fmt.Fprintf(&sb, "%02X ", data[i])
	}
	l.output(LogLevelDebug, "DEBUG", "CAN %s: ID=0x%03X Len=%d Data=[%s]", direction, id, length, sb.String())
}

var _ gwm.Logger = (*LeveledLogger)(nil)

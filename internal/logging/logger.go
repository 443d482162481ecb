// Package logging provides categorized file-based logging for ouro.
// Logs are written to <workspace>/.ouro/logs/ with one file per category.
// When debug mode is off every call is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot    Category = "boot"    // Bootstrap chain, stage transitions
	CategoryVFS     Category = "vfs"     // Source tree mutations
	CategoryLoader  Category = "loader"  // Module resolution, compile, execute
	CategoryStore   Category = "store"   // SQLite persistence
	CategoryEvolve  Category = "evolve"  // Evolution engine, service calls
	CategoryPreview Category = "preview" // Bundling executor
	CategoryMirror  Category = "mirror"  // Disk mirror sync
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at
// startup; with debug=false all logging is disabled.
func Initialize(workspace string, debug bool, level string) error {
	enabled = debug
	if !enabled {
		return nil
	}

	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	logsDir = filepath.Join(workspace, ".ouro", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Get(CategoryBoot).Info("=== ouro logging initialized (level=%s) ===", level)
	return nil
}

// Get returns (or creates) a logger for the given category. Returns a
// no-op logger if logging is disabled.
func Get(category Category) *Logger {
	if !enabled || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category.
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// BootWarn logs warning to the boot category.
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// BootError logs error to the boot category.
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// VFS logs to the vfs category.
func VFS(format string, args ...interface{}) { Get(CategoryVFS).Info(format, args...) }

// VFSDebug logs debug to the vfs category.
func VFSDebug(format string, args ...interface{}) { Get(CategoryVFS).Debug(format, args...) }

// Loader logs to the loader category.
func Loader(format string, args ...interface{}) { Get(CategoryLoader).Info(format, args...) }

// LoaderDebug logs debug to the loader category.
func LoaderDebug(format string, args ...interface{}) { Get(CategoryLoader).Debug(format, args...) }

// LoaderError logs error to the loader category.
func LoaderError(format string, args ...interface{}) { Get(CategoryLoader).Error(format, args...) }

// Store logs to the store category.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs warning to the store category.
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// Evolve logs to the evolve category.
func Evolve(format string, args ...interface{}) { Get(CategoryEvolve).Info(format, args...) }

// EvolveDebug logs debug to the evolve category.
func EvolveDebug(format string, args ...interface{}) { Get(CategoryEvolve).Debug(format, args...) }

// EvolveError logs error to the evolve category.
func EvolveError(format string, args ...interface{}) { Get(CategoryEvolve).Error(format, args...) }

// Preview logs to the preview category.
func Preview(format string, args ...interface{}) { Get(CategoryPreview).Info(format, args...) }

// PreviewDebug logs debug to the preview category.
func PreviewDebug(format string, args ...interface{}) { Get(CategoryPreview).Debug(format, args...) }

// Mirror logs to the mirror category.
func Mirror(format string, args ...interface{}) { Get(CategoryMirror).Info(format, args...) }

// MirrorDebug logs debug to the mirror category.
func MirrorDebug(format string, args ...interface{}) { Get(CategoryMirror).Debug(format, args...) }

// MirrorWarn logs warning to the mirror category.
func MirrorWarn(format string, args ...interface{}) { Get(CategoryMirror).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

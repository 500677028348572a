package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultLogFile is where every run appends its log.
const DefaultLogFile = "requirements_analysis.log"

// Level is the minimum severity that gets written.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel accepts debug, info, warn/warning and error (case-insensitive).
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	OutputFile string    // empty = console only
	Console    io.Writer // nil = os.Stdout
	MaxSize    int64     // bytes before rotation, default 10MB
	MaxBackups int       // rotated files kept, default 3
	JSONFormat bool
	AddSource  bool
}

// Logger tees slog records to the console and the run log file.
type Logger struct {
	slog   *slog.Logger
	config Config
	out    io.Writer
	file   *os.File
	mu     sync.Mutex
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// Initialize builds the process-wide logger and installs it as slog's default,
// so packages that log through slog.Default() end up in the same file.
// Calling it again replaces the previous logger and closes its file.
func Initialize(config Config) (*Logger, error) {
	logger, err := NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if prev != nil {
		prev.Close()
	}
	slog.SetDefault(logger.slog)
	return logger, nil
}

// NewLogger creates a logger without touching global state.
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.Console == nil {
		config.Console = os.Stdout
	}

	logger := &Logger{config: config}
	writers := []io.Writer{config.Console}

	if config.OutputFile != "" {
		if dir := filepath.Dir(config.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		if err := logger.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}
		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	logger.out = io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}
	var handler slog.Handler
	if config.JSONFormat {
		handler = slog.NewJSONHandler(logger.out, opts)
	} else {
		handler = slog.NewTextHandler(logger.out, opts)
	}
	logger.slog = slog.New(handler)
	return logger, nil
}

// rotateIfNeeded shifts name -> name.1 -> name.2 ... once the file reaches MaxSize.
func (l *Logger) rotateIfNeeded() error {
	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < l.config.MaxSize {
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", l.config.OutputFile, l.config.MaxBackups)
	_ = os.Remove(oldest)
	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, fmt.Sprintf("%s.%d", l.config.OutputFile, i+1))
		}
	}
	if err := os.Rename(l.config.OutputFile, l.config.OutputFile+".1"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Slog exposes the underlying *slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Writer is the console+file tee; the CLI points logrus at it so both
// loggers land in the same run log.
func (l *Logger) Writer() io.Writer { return l.out }

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger sharing the same file.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config, out: l.out, file: l.file}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func current() *slog.Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		return globalLogger.slog
	}
	return slog.Default()
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }
func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }

// Component returns a logger tagged with a component attribute.
func Component(name string) *slog.Logger {
	return current().With("component", name)
}

// Close closes the global logger's file.
func Close() error {
	globalMu.Lock()
	l := globalLogger
	globalMu.Unlock()
	if l == nil {
		return nil
	}
	return l.Close()
}

// LogFilePath returns the active log file, or "" when logging to console only.
func LogFilePath() string {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		return ""
	}
	return globalLogger.config.OutputFile
}

// DefaultConfig logs text to stdout and requirements_analysis.log.
func DefaultConfig(verbose bool) Config {
	level := INFO
	if verbose {
		level = DEBUG
	}
	return Config{
		Level:      level,
		OutputFile: DefaultLogFile,
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
		AddSource:  verbose,
	}
}

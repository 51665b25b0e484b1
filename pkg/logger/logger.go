package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

var levelNames = map[string]Level{
	"debug":  DebugLevel,
	"info":   InfoLevel,
	"notice": NoticeLevel,
	"error":  ErrorLevel,
}

// ParseLevel converts a level name (debug, info, notice, error) into a Level
func ParseLevel(name string) (Level, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return InfoLevel, fmt.Errorf("unknown log level: %s", name)
	}
	return level, nil
}

// jobColors rotates through a palette so consecutive jobs are easy to tell apart
var jobColors = []color.Attribute{
	color.FgHiGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgHiBlue,
	color.FgCyan,
	color.FgBlue,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithJob(jobID uint64, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithJob(jobID uint64, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithJob(jobID uint64, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithJob(jobID uint64, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                    {}
func (l *EmptyLogger) InfoWithJob(_ uint64, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) ErrorWithJob(_ uint64, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) DebugWithJob(_ uint64, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) NoticeWithJob(_ uint64, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	out            *log.Logger
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
		out:            log.Default(),
	}
}

// WithOutput redirects output to the given logger, used by tests to capture lines
func (l *StdLogger) WithOutput(out *log.Logger) *StdLogger {
	l.out = out
	return l
}

// formatMessage formats the log message with the level, an optional job prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, jobID *uint64, format string) string {
	jobPrefix := ""
	if jobID != nil {
		jobPrefix = fmt.Sprintf("[JOB %d] ", *jobID)
		if l.enableColoring {
			jobPrefix = color.New(jobColors[*jobID%uint64(len(jobColors))]).Sprint(jobPrefix)
		}
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
		if l.enableColoring {
			levelStr = color.New(color.FgRed).Sprint(levelStr)
		}
	}

	return levelStr + jobPrefix + format
}

func (l *StdLogger) logf(level Level, jobID *uint64, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= level {
		l.out.Printf(l.formatMessage(level, jobID, format), args...)
	}
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, nil, format, args...)
}

func (l *StdLogger) InfoWithJob(jobID uint64, format string, args ...interface{}) {
	l.logf(InfoLevel, &jobID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, nil, format, args...)
}

func (l *StdLogger) ErrorWithJob(jobID uint64, format string, args ...interface{}) {
	l.logf(ErrorLevel, &jobID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, nil, format, args...)
}

func (l *StdLogger) DebugWithJob(jobID uint64, format string, args ...interface{}) {
	l.logf(DebugLevel, &jobID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, nil, format, args...)
}

func (l *StdLogger) NoticeWithJob(jobID uint64, format string, args ...interface{}) {
	l.logf(NoticeLevel, &jobID, format, args...)
}

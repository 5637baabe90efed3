package modbus

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel type defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

var levelToString = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

// SimpleLogger implements io.WriteCloser with level filtering. The
// library writes plain messages to it; the level is inferred from a
// message prefix, defaulting to INFO.
type SimpleLogger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.Writer
	prefix string
}

// NewSimpleLogger creates a SimpleLogger. If output is nil, it defaults
// to os.Stdout.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{
		level:  level,
		output: output,
		prefix: prefix,
	}
}

// SetLevel sets the logging level.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Write implements io.Writer, filtering by the configured level.
func (l *SimpleLogger) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	level := determineLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	timestamp := time.Now().Format(time.RFC3339)
	formatted := fmt.Sprintf("%s [%s] <%s> %s\n", timestamp, levelToString[level], l.prefix, message)
	return l.output.Write([]byte(formatted))
}

// Close implements io.Closer. It closes the underlying output unless it
// is os.Stdout.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.output.(io.Closer); ok && l.output != os.Stdout {
		return closer.Close()
	}
	return nil
}

// determineLevel infers the log level from the message prefix.
func determineLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	switch {
	case strings.HasPrefix(upper, "[DEBUG]") || strings.HasPrefix(upper, "DEBUG:"):
		return LevelDebug
	case strings.HasPrefix(upper, "[WARNING]") || strings.HasPrefix(upper, "WARN:"):
		return LevelWarning
	case strings.HasPrefix(upper, "[ERROR]") || strings.HasPrefix(upper, "ERROR:"):
		return LevelError
	default:
		return LevelInfo
	}
}

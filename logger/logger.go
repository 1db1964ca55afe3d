// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the lower-case level name.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a config string onto a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

// Options configures the default logger.
type Options struct {
	Level   LogLevel
	File    string // empty disables file output
	Console bool
}

// Logger writes every level to a colored console stream and a plain file stream.
type Logger struct {
	console  [4]*log.Logger
	plain    [4]*log.Logger
	file     *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

var consolePrefixes = [4]string{
	colorGray + "[DEBUG] " + colorReset,
	colorReset + "[INFO]  " + colorReset,
	colorYellow + "[WARN]  " + colorReset,
	colorRed + "[ERROR] " + colorReset,
}

var plainPrefixes = [4]string{"[DEBUG] ", "[INFO]  ", "[WARN]  ", "[ERROR] "}

// ensureInitialized creates a console-only default logger if one doesn't exist
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(os.Stdout, nil, INFO)
		}
	})
}

func newLogger(console, plain io.Writer, level LogLevel) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l := &Logger{minLevel: level}
	for i := range consolePrefixes {
		if console != nil {
			l.console[i] = log.New(console, consolePrefixes[i], flags)
		}
		if plain != nil {
			l.plain[i] = log.New(plain, plainPrefixes[i], flags)
		}
	}
	return l
}

// Configure replaces the default logger. If File is empty, logs only to
// console; if Console is false, logs only to file.
func Configure(opts Options) error {
	var (
		console io.Writer
		plain   io.Writer
		file    *os.File
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		plain = f
	}
	if opts.Console {
		console = os.Stdout
	}
	if console == nil && plain == nil {
		return fmt.Errorf("no output destination specified")
	}

	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger = newLogger(console, plain, opts.Level)
	defaultLogger.file = file
	return nil
}

// SetOutput sends uncolored output to w, replacing any other destination.
// Meant for tests and embedding.
func SetOutput(w io.Writer) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	level := defaultLogger.minLevel
	if defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger = newLogger(nil, w, level)
}

// SetLevel sets the minimum log level. Messages below it are discarded.
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		for i := range defaultLogger.plain {
			defaultLogger.plain[i] = nil
		}
	}
}

func output(level LogLevel, msg string) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	l := defaultLogger
	if level < l.minLevel {
		return
	}
	if c := l.console[level]; c != nil {
		c.Output(3, msg)
	}
	if p := l.plain[level]; p != nil {
		p.Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) { output(DEBUG, fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }

// Info logs an info message
func Info(v ...interface{}) { output(INFO, fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { output(INFO, fmt.Sprintf(format, v...)) }

// Warn logs a warning message
func Warn(v ...interface{}) { output(WARN, fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { output(WARN, fmt.Sprintf(format, v...)) }

// Error logs an error message
func Error(v ...interface{}) { output(ERROR, fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}

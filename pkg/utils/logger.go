package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = ".askweb/askweb.log"

// LogOptions controls where and how the process logger writes.
type LogOptions struct {
	Filename string
	JSON     bool
	// Verbose mirrors process steps to stderr.
	Verbose bool
}

// Logger represents the process logger. A nil *Logger discards everything.
type Logger struct {
	logger        *log.Logger
	jsonMode      bool
	verbose       bool
	correlationID string
}

var (
	globalLogger *Logger
	once         sync.Once
	mu           sync.Mutex
)

// InitLogger configures the singleton logger. The first call wins; later
// calls return the same logger.
func InitLogger(opts LogOptions) *Logger {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		globalLogger = newLogger(opts)
	})
	return globalLogger
}

func newLogger(opts LogOptions) *Logger {
	filename := opts.Filename
	if filename == "" {
		filename = defaultLogFile
	}
	logFile := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return NewLoggerWithWriter(logFile, opts)
}

// NewLoggerWithWriter builds a logger over an arbitrary writer. Tests use it
// to capture output without touching the singleton.
func NewLoggerWithWriter(w io.Writer, opts LogOptions) *Logger {
	return &Logger{
		logger:   log.New(w, "", log.LstdFlags),
		jsonMode: opts.JSON,
		verbose:  opts.Verbose,
	}
}

// WithCorrelationID returns a logger sharing the same output that tags every
// line with id.
func (w *Logger) WithCorrelationID(id string) *Logger {
	if w == nil {
		return nil
	}
	clone := *w
	clone.correlationID = id
	return &clone
}

// Close closes the logger resources.
func (w *Logger) Close() error {
	if w == nil {
		return nil
	}
	if logFile, ok := w.logger.Writer().(*lumberjack.Logger); ok {
		return logFile.Close()
	}
	return nil
}

// LogProcessStep logs the current step in a process.
func (w *Logger) LogProcessStep(step string) {
	if w == nil {
		return
	}
	if w.verbose {
		fmt.Fprintf(os.Stderr, "%s\n", step)
	}
	if w.jsonMode {
		w.encode(map[string]any{"level": "info", "step": step, "cid": w.correlationID})
		return
	}
	w.logger.Printf("%sProcess Step: %s", w.prefix(), step)
}

// Log logs a general message only to the log file.
func (w *Logger) Log(message string) {
	if w == nil {
		return
	}
	if w.jsonMode {
		w.encode(map[string]any{"level": "info", "msg": message, "cid": w.correlationID})
		return
	}
	w.logger.Print(w.prefix() + message)
}

// Logf logs a formatted general message only to the log file.
func (w *Logger) Logf(format string, v ...interface{}) {
	if w == nil {
		return
	}
	w.Log(fmt.Sprintf(format, v...))
}

func (w *Logger) LogError(err error) {
	if w == nil || err == nil {
		return
	}
	if w.jsonMode {
		w.encode(map[string]any{"level": "error", "error": err.Error(), "cid": w.correlationID})
		return
	}
	w.logger.Printf("%sError: %s", w.prefix(), err)
}

func (w *Logger) encode(record map[string]any) {
	_ = json.NewEncoder(w.logger.Writer()).Encode(record)
}

func (w *Logger) prefix() string {
	if w.correlationID == "" {
		return ""
	}
	return "[" + w.correlationID + "] "
}

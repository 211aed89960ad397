package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger provides leveled logging (debug/info/warning/error) to a timestamped
// run log file plus stdout/stderr. Debug entries go to the console only; the
// file keeps info level and above.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	file       *os.File
	mu         sync.Mutex
}

// New creates a Logger, ensuring the log directory exists and opening a new
// run log file named after the start time.
func New(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("gatekeeper_%s.log", time.Now().Format("20060102_150405"))
	file, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	infoWriter := io.MultiWriter(os.Stdout, file)
	errorWriter := io.MultiWriter(os.Stderr, file)

	return &Logger{
		debugLog:   log.New(os.Stdout, "DEBUG   ", log.Ldate|log.Ltime),
		infoLog:    log.New(infoWriter, "INFO    ", log.Ldate|log.Ltime),
		warningLog: log.New(infoWriter, "WARNING ", log.Ldate|log.Ltime),
		errorLog:   log.New(errorWriter, "ERROR   ", log.Ldate|log.Ltime),
		file:       file,
	}, nil
}

// Debug writes a formatted debug-level log entry (console only).
func (l *Logger) Debug(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLog.Printf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}

// Close flushes and closes the run log file. The Logger must not be used
// after Close.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}

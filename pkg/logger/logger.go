// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
	logger *log.Logger
}

var (
	baseMu       sync.RWMutex
	baseLogger   = log.New(os.Stdout, "", log.LstdFlags)
	logFile      *os.File
	once         sync.Once
	debugEnabled bool
	debugMu      sync.RWMutex
)

// Init tees the base logger to stdout and the file at logPath.
// Debug output is enabled at startup when the DEBUG env var is set.
// Loggers created before Init keep writing to stdout only.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		if os.Getenv("DEBUG") != "" {
			EnableDebug(true)
		}

		if mkErr := os.MkdirAll(filepath.Dir(logPath), 0o755); mkErr != nil {
			err = mkErr
			return
		}
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		setBase(io.MultiWriter(os.Stdout, logFile))
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

func setBase(w io.Writer) {
	baseMu.Lock()
	baseLogger = log.New(w, "", log.LstdFlags)
	baseMu.Unlock()
}

func base() *log.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return baseLogger
}

func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// output resolves the base logger on every call so that
// loggers created at package init follow a later Init.
func (l *Logger) output() *log.Logger {
	if l.logger != nil {
		return l.logger
	}
	return base()
}

// WithWriter returns a copy of l that writes to w instead of the
// shared base logger. Used by tests to capture output.
func (l *Logger) WithWriter(w io.Writer) *Logger {
	return &Logger{prefix: l.prefix, logger: log.New(w, "", 0)}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	l.output().Printf("[%s] INFO: %v", l.prefix, formatted)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	l.output().Printf("[%s] WARN: %v", l.prefix, formatted)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		l.output().Printf("[%s] ERROR: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		l.output().Printf("[%s] ERROR: %v", l.prefix, formatted)
	}
}

// Fatal logs and panics. Reserved for programming defects; service.Start
// recovers the panic and shuts the process down cleanly.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(1)
	if ok {
		file = filepath.Base(file)
		l.output().Printf("[%s] FATAL: (%s:%d) %s", l.prefix, file, line, formatted)
	} else {
		l.output().Printf("[%s] FATAL: %v", l.prefix, formatted)
	}
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	formatted := fmt.Sprintf(fmtstr, v...)
	l.output().Printf("[%s] DEBUG: %v", l.prefix, formatted)
}

// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package logging provides the leveled logger used by all collector packages.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level int

const (
	// LevelError only logs errors
	LevelError Level = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelProgress logs the collection progress, warnings and errors
	LevelProgress
	// LevelInfo logs general information and all above
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
)

var levelNames = map[Level]string{
	LevelError:    "ERROR",
	LevelWarn:     "WARN",
	LevelProgress: "PROGRESS",
	LevelInfo:     "INFO",
	LevelDebug:    "DEBUG",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name like "info" into a Level.
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if strings.EqualFold(name, s) {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type output struct {
	w      io.Writer
	level  Level
	logger *log.Logger
}

// Logger writes messages to a set of outputs, each with its own level.
type Logger struct {
	mu      sync.RWMutex
	outputs []output
}

var std = New(os.Stderr, LevelProgress)

// New creates a logger with a single output.
func New(w io.Writer, level Level) *Logger {
	l := &Logger{}
	l.AddOutput(w, level)
	return l
}

// Default returns the package level logger.
func Default() *Logger {
	return std
}

// AddOutput registers an additional destination that receives all messages up to level.
func (l *Logger) AddOutput(w io.Writer, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, output{
		w:      w,
		level:  level,
		logger: log.New(w, "", log.Ldate|log.Ltime|log.LUTC),
	})
}

// RemoveOutput stops writing to w.
func (l *Logger) RemoveOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	outputs := l.outputs[:0]
	for _, o := range l.outputs {
		if o.w != w {
			outputs = append(outputs, o)
		}
	}
	l.outputs = outputs
}

// SetLevel changes the level of every output.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.outputs {
		l.outputs[i].level = level
	}
}

// Reset removes all outputs and writes to w only.
func (l *Logger) Reset(w io.Writer, level Level) {
	l.mu.Lock()
	l.outputs = nil
	l.mu.Unlock()
	l.AddOutput(w, level)
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	msg := fmt.Sprintf("[%s] %s", level, fmt.Sprintf(format, args...))
	for _, o := range l.outputs {
		if level > o.level {
			continue
		}
		if err := o.logger.Output(3, msg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write log message: %v\n", err)
		}
	}
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Warnf logs a warning.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Progressf logs a progress message.
func (l *Logger) Progressf(format string, args ...interface{}) {
	l.log(LevelProgress, format, args...)
}

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Errorf logs an error message to the default logger.
func Errorf(format string, args ...interface{}) { std.log(LevelError, format, args...) }

// Warnf logs a warning to the default logger.
func Warnf(format string, args ...interface{}) { std.log(LevelWarn, format, args...) }

// Progressf logs a progress message to the default logger.
func Progressf(format string, args ...interface{}) { std.log(LevelProgress, format, args...) }

// Infof logs an informational message to the default logger.
func Infof(format string, args ...interface{}) { std.log(LevelInfo, format, args...) }

// Debugf logs a debug message to the default logger.
func Debugf(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }

// AddOutput adds w to the default logger.
func AddOutput(w io.Writer, level Level) { std.AddOutput(w, level) }

// RemoveOutput removes w from the default logger.
func RemoveOutput(w io.Writer) { std.RemoveOutput(w) }

// SetLevel changes the level of the default logger.
func SetLevel(level Level) { std.SetLevel(level) }

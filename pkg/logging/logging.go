// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the printf-style logging used across the outline
// tools. Records are written through logrus.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger = newLogger(os.Stderr)

	// exit is swapped in tests so Fatal can be observed.
	exit = os.Exit
)

// Fields is an alias of logrus.Fields for structured records.
type Fields = logrus.Fields

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&formatter{colored: isTerminal(w)})
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// formatter renders "LEVEL message key=value ..." lines. The level is coloured
// only on terminals.
type formatter struct {
	colored bool
}

func (f *formatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	level := strings.ToUpper(e.Level.String())
	if f.colored {
		level = levelColor(e.Level).Sprint(level)
	}
	fmt.Fprintf(&b, "%s %s %s", e.Time.Format("2006-01-02 15:04:05"), level, e.Message)
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelColor(l logrus.Level) *color.Color {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgCyan)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgGreen)
	}
}

// SetOutput redirects all records to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
	logger.SetFormatter(&formatter{colored: isTerminal(w)})
}

// Output returns the writer records currently go to.
func Output() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return logger.Out
}

// SetDebug elevates the log level to debug when on is true.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	if on {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// WithFields returns an entry that carries the given fields.
func WithFields(f Fields) *logrus.Entry {
	return logger.WithFields(f)
}

// Debug logs a debug record.
func Debug(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// Info logs an informational record.
func Info(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// Warn logs a warning record.
func Warn(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Error logs an error record.
func Error(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// Fatal logs an error record and exits the process with status 1.
func Fatal(format string, args ...interface{}) {
	logger.Errorf(format, args...)
	exit(1)
}

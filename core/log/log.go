// log.go - logging backend
// Copyright (C) 2026  The mietze authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package log provides a logging backend, based around the go-logging
// package.
package log

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

var logFormat = logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}")

// Backend is a log backend.
type Backend struct {
	sync.Mutex

	backend logging.LeveledBackend
	f       *os.File
}

// GetLogger returns a per-module logger that writes to the backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	b.Lock()
	defer b.Unlock()

	l := logging.MustGetLogger(module)
	l.SetBackend(b.backend)
	return l
}

// GetLogWriter returns an io.Writer that writes to the backend at the
// provided level, prefixed with the module.
func (b *Backend) GetLogWriter(module, level string) io.Writer {
	lvl, err := logLevelFromString(level)
	if err != nil {
		panic("log: GetLogWriter() called with invalid level: " + err.Error())
	}
	return &logWriter{l: b.GetLogger(module), lvl: lvl}
}

// Rotate closes and reopens the log file backing the Backend.
func (b *Backend) Rotate() error {
	if b.f == nil {
		return fmt.Errorf("log: log rotation not supported")
	}

	b.Lock()
	defer b.Unlock()

	f, err := os.OpenFile(b.f.Name(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	level := logging.GetLevel("")

	base := logging.NewLogBackend(f, "", 0)
	formatted := logging.NewBackendFormatter(base, logFormat)
	b.backend = logging.AddModuleLevel(formatted)
	b.backend.SetLevel(level, "")

	oldF := b.f
	b.f = f
	oldF.Close()

	return nil
}

// New initializes a logging backend, writing to the given file at the
// given level.  An empty file writes to stdout, disable suppresses all
// output.
func New(f string, level string, disable bool) (*Backend, error) {
	lvl, err := logLevelFromString(level)
	if err != nil {
		return nil, err
	}

	b := new(Backend)
	var w io.Writer
	switch {
	case disable:
		w = ioutil.Discard
	case f == "":
		w = os.Stdout
	default:
		b.f, err = os.OpenFile(f, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("log: failed to open log file: %v", err)
		}
		w = b.f
	}

	base := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(base, logFormat)
	b.backend = logging.AddModuleLevel(formatted)
	b.backend.SetLevel(lvl, "")

	return b, nil
}

type logWriter struct {
	l   *logging.Logger
	lvl logging.Level
}

func (w *logWriter) Write(p []byte) (int, error) {
	s := strings.TrimSpace(string(p))
	if s == "" {
		return len(p), nil
	}
	switch w.lvl {
	case logging.ERROR:
		w.l.Error(s)
	case logging.WARNING:
		w.l.Warning(s)
	case logging.NOTICE:
		w.l.Notice(s)
	case logging.INFO:
		w.l.Info(s)
	case logging.DEBUG:
		w.l.Debug(s)
	default:
		panic("BUG: invalid log level in logWriter")
	}
	return len(p), nil
}

func logLevelFromString(l string) (logging.Level, error) {
	switch strings.ToUpper(l) {
	case "ERROR":
		return logging.ERROR, nil
	case "WARNING":
		return logging.WARNING, nil
	case "NOTICE", "":
		return logging.NOTICE, nil
	case "INFO":
		return logging.INFO, nil
	case "DEBUG":
		return logging.DEBUG, nil
	default:
		return logging.ERROR, fmt.Errorf("log: invalid level: '%v'", l)
	}
}

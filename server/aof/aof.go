// aof.go - append-only command log
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

// Package aof implements the append-only durability log: every accepted
// write command is appended in its RESP wire form and replayed in order
// on startup.
package aof

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/log"
	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/core/worker"
)

// SyncPolicy selects when the log is fsynced.
type SyncPolicy int

const (
	// SyncAlways flushes and fsyncs before the write is acknowledged.
	SyncAlways SyncPolicy = iota

	// SyncEverySec fsyncs from a background tick once at least a
	// second has passed since the last sync.
	SyncEverySec

	// SyncNo never explicitly fsyncs.
	SyncNo
)

// SyncPolicyFromString parses a sync policy name.
func SyncPolicyFromString(s string) (SyncPolicy, error) {
	switch s {
	case "always":
		return SyncAlways, nil
	case "everysec", "":
		return SyncEverySec, nil
	case "no":
		return SyncNo, nil
	default:
		return SyncNo, fmt.Errorf("aof: invalid sync policy '%v'", s)
	}
}

// Log is the append-only log writer.  Append failures are logged and
// swallowed, durability degrades rather than failing the command.
type Log struct {
	worker.Worker
	sync.Mutex

	log *logging.Logger

	f      *os.File
	policy SyncPolicy
	dirty  bool
}

// Open opens (creating if missing) the log at path for appending and,
// for SyncEverySec, starts the background sync worker.
func Open(path string, policy SyncPolicy, logBackend *log.Backend) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "aof: failed to open log")
	}
	l := &Log{
		log:    logBackend.GetLogger("aof"),
		f:      f,
		policy: policy,
	}
	if policy == SyncEverySec {
		l.Go(l.syncWorker)
	}
	return l, nil
}

// Append writes the wire form of one command to the log, applying the
// sync policy.
func (l *Log) Append(wire []byte) {
	l.Lock()
	defer l.Unlock()

	if _, err := l.f.Write(wire); err != nil {
		l.log.Errorf("Failed to append %d bytes: %v", len(wire), err)
		return
	}
	switch l.policy {
	case SyncAlways:
		if err := l.f.Sync(); err != nil {
			l.log.Errorf("Failed to fsync: %v", err)
		}
	case SyncEverySec:
		l.dirty = true
	}
}

func (l *Log) syncWorker() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.HaltCh():
			return
		case <-ticker.C:
		}

		l.Lock()
		if l.dirty {
			if err := l.f.Sync(); err != nil {
				l.log.Errorf("Failed to fsync: %v", err)
			}
			l.dirty = false
		}
		l.Unlock()
	}
}

// Close halts the sync worker and closes the log, after a final sync
// unless the policy is SyncNo.
func (l *Log) Close() {
	l.Halt()

	l.Lock()
	defer l.Unlock()
	if l.policy != SyncNo {
		if err := l.f.Sync(); err != nil {
			l.log.Errorf("Failed to fsync on close: %v", err)
		}
	}
	if err := l.f.Close(); err != nil {
		l.log.Errorf("Failed to close log: %v", err)
	}
}

// Replay reads the log at path, if present, and hands each complete
// command frame to apply in order.  A framing error stops the replay at
// the offending offset without deleting anything; the log retains what
// was applied.
func Replay(path string, logBackend *log.Backend, apply func(f *resp.Frame)) error {
	lg := logBackend.GetLogger("aof")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "aof: failed to read log")
	}

	p := resp.NewParser()
	p.Feed(data)
	offset := 0
	replayed := 0
	for {
		f, n, err := p.Next()
		switch err {
		case nil:
		case resp.ErrIncomplete:
			if p.Buffered() != 0 {
				lg.Warningf("Log ends with a truncated frame at offset %d, stopping replay.", offset)
			}
			lg.Noticef("Replayed %d command(s), %d byte(s).", replayed, offset)
			return nil
		default:
			lg.Errorf("Log is corrupt at offset %d: %v, stopping replay.", offset, err)
			lg.Noticef("Replayed %d command(s), %d byte(s).", replayed, offset)
			return nil
		}
		apply(f)
		offset += n
		replayed++
	}
}

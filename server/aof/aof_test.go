// aof_test.go - append-only log tests
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

package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mietze-io/mietze/core/log"
	"github.com/mietze-io/mietze/core/resp"
)

func testBackend(t *testing.T) *log.Backend {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return logBackend
}

func TestAppendAndReplay(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "mietze.aof")

	l, err := Open(path, SyncAlways, testBackend(t))
	require.NoError(err)
	l.Append(resp.EncodeCommand("SET", "k", "v"))
	l.Append(resp.EncodeCommand("INCR", "c"))
	l.Close()

	var got [][]string
	err = Replay(path, testBackend(t), func(f *resp.Frame) {
		cmd, args, ok := f.Command()
		require.True(ok)
		got = append(got, append([]string{cmd}, args...))
	})
	require.NoError(err)
	require.Equal([][]string{{"SET", "k", "v"}, {"INCR", "c"}}, got)
}

func TestAppendReopens(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "mietze.aof")

	l, err := Open(path, SyncEverySec, testBackend(t))
	require.NoError(err)
	l.Append(resp.EncodeCommand("SET", "a", "1"))
	l.Close()

	// Appends after a restart accumulate, the log is never truncated.
	l, err = Open(path, SyncNo, testBackend(t))
	require.NoError(err)
	l.Append(resp.EncodeCommand("SET", "b", "2"))
	l.Close()

	var count int
	require.NoError(Replay(path, testBackend(t), func(*resp.Frame) { count++ }))
	require.Equal(2, count)
}

func TestReplayMissingLog(t *testing.T) {
	require.NoError(t, Replay(
		filepath.Join(t.TempDir(), "absent.aof"), testBackend(t),
		func(*resp.Frame) { t.Fatal("apply called for a missing log") }))
}

func TestReplayStopsAtCorruption(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "mietze.aof")

	data := resp.EncodeCommand("SET", "k", "v")
	data = append(data, "?broken\r\n"...)
	data = append(data, resp.EncodeCommand("SET", "k2", "v2")...)
	require.NoError(os.WriteFile(path, data, 0600))

	var count int
	require.NoError(Replay(path, testBackend(t), func(*resp.Frame) { count++ }))
	require.Equal(1, count)

	// The log is left in place untouched.
	onDisk, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal(data, onDisk)
}

func TestReplayTruncatedTail(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "mietze.aof")

	data := resp.EncodeCommand("SET", "k", "v")
	data = append(data, "*3\r\n$3\r\nSET\r\n"...) // incomplete frame
	require.NoError(os.WriteFile(path, data, 0600))

	var count int
	require.NoError(Replay(path, testBackend(t), func(*resp.Frame) { count++ }))
	require.Equal(1, count)
}

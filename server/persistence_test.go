// persistence_test.go - snapshot load and append-log replay tests
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

package server

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/rdb"
)

func TestAppendLogSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.AppendOnly.Enable = true
	cfg.AppendOnly.SyncPolicy = "always"

	svr := startTestServer(t, cfg)
	c := dialTestClient(t, svr)
	c.send("SET", "k", "v")
	c.expect("+OK\r\n")
	c.send("RPUSH", "l", "a")
	c.expect(":1\r\n")
	c.send("GET", "k") // reads must not hit the log
	c.expect("$1\r\nv\r\n")
	svr.Shutdown()

	// A fresh instance over the same directories replays the log
	// before accepting clients.
	cfg.Server.Port = freePort(t)
	svr2 := startTestServer(t, cfg)
	c2 := dialTestClient(t, svr2)
	c2.send("GET", "k")
	c2.expect("$1\r\nv\r\n")
	c2.send("LRANGE", "l", "0", "-1")
	c2.expect("*1\r\n$1\r\na\r\n")
}

func TestAppendLogReplayDoesNotReappend(t *testing.T) {
	cfg := testConfig(t)
	cfg.AppendOnly.Enable = true
	cfg.AppendOnly.SyncPolicy = "always"

	svr := startTestServer(t, cfg)
	c := dialTestClient(t, svr)
	c.send("INCR", "n")
	c.expect(":1\r\n")
	svr.Shutdown()

	sizeAfterFirst := fileSize(t, cfg.AppendOnlyPath())

	cfg.Server.Port = freePort(t)
	svr2 := startTestServer(t, cfg)
	defer svr2.Shutdown()

	// Replay must not rewrite the replayed commands.
	require.Equal(t, sizeAfterFirst, fileSize(t, cfg.AppendOnlyPath()))

	c2 := dialTestClient(t, svr2)
	c2.send("GET", "n")
	c2.expect("$1\r\n1\r\n")
}

func TestSnapshotLoadedAtStartup(t *testing.T) {
	cfg := testConfig(t)

	// Hand-build a snapshot with one string key.
	b := []byte("REDIS0011")
	b = append(b, 0x00) // string type
	b = append(b, byte(len("cat")))
	b = append(b, "cat"...)
	b = append(b, byte(len("meow")))
	b = append(b, "meow"...)
	b = append(b, 0xFF)
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0)
	require.NoError(t, os.WriteFile(cfg.SnapshotPath(), b, 0600))

	svr := startTestServer(t, cfg)
	c := dialTestClient(t, svr)
	c.send("GET", "cat")
	c.expect("$4\r\nmeow\r\n")
	c.send("KEYS", "*")
	c.expect("*1\r\n$3\r\ncat\r\n")
}

func TestCorruptSnapshotIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.SnapshotPath(), []byte("GARBAGE00"), 0600))

	_, err := New(cfg)
	require.Error(t, err)
}

func TestEmptySnapshotAccepted(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.SnapshotPath(), rdb.EmptySnapshot(), 0600))

	svr := startTestServer(t, cfg)
	c := dialTestClient(t, svr)
	c.send("KEYS", "*")
	c.expect("*0\r\n")
}

func TestWritesAppendWireForm(t *testing.T) {
	cfg := testConfig(t)
	cfg.AppendOnly.Enable = true
	cfg.AppendOnly.SyncPolicy = "always"

	svr := startTestServer(t, cfg)
	c := dialTestClient(t, svr)
	c.send("SET", "k", "v")
	c.expect("+OK\r\n")
	c.send("GET", "k")
	c.expect("$1\r\nv\r\n")
	svr.Shutdown()

	data, err := os.ReadFile(cfg.AppendOnlyPath())
	require.NoError(t, err)
	// Only the write landed in the log, in RESP wire form.
	require.Equal(t, string(resp.EncodeCommand("SET", "k", "v")), string(data))
}

func fileSize(t *testing.T, path string) int64 {
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size()
}

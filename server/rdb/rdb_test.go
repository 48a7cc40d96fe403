// rdb_test.go - snapshot decoding tests
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

package rdb

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mietze-io/mietze/core/log"
	"github.com/mietze-io/mietze/server/store"
)

// A version 11 empty snapshot with metadata entries, as emitted by a
// stock server, including integer-encoded metadata values.
const emptySnapshotB64 = "UkVESVMwMDEx+glyZWRpcy12ZXIFNy4yLjD6CnJlZGlzLWJpdHPAQPoFY3RpbWXCbQi8ZfoIdXNlZC1tZW3CsMQQAPoIYW9mLWJhc2XAAP/wbjv+wP9aog=="

func newTestStore(t *testing.T) *store.Store {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return store.New(logBackend)
}

type builder struct {
	b []byte
}

func newBuilder() *builder {
	return &builder{b: []byte("REDIS0011")}
}

func (w *builder) opcode(op byte) *builder {
	w.b = append(w.b, op)
	return w
}

func (w *builder) str(s string) *builder {
	w.b = append(w.b, byte(len(s)))
	w.b = append(w.b, s...)
	return w
}

func (w *builder) length(n int) *builder {
	w.b = append(w.b, byte(n))
	return w
}

func (w *builder) expiryMS(at int64) *builder {
	w.b = append(w.b, opExpireTimeMS)
	w.b = binary.LittleEndian.AppendUint64(w.b, uint64(at))
	return w
}

func (w *builder) finish() []byte {
	w.b = append(w.b, opEOF)
	return append(w.b, 0, 0, 0, 0, 0, 0, 0, 0)
}

func TestLoadEmptySnapshot(t *testing.T) {
	require := require.New(t)

	data, err := base64.StdEncoding.DecodeString(emptySnapshotB64)
	require.NoError(err)

	s := newTestStore(t)
	require.NoError(Load(data, s))
	require.Zero(s.Len())
}

func TestLoadMinimalSnapshot(t *testing.T) {
	require := require.New(t)

	require.NoError(Load(EmptySnapshot(), newTestStore(t)))
}

func TestLoadStringAndExpiry(t *testing.T) {
	require := require.New(t)

	now := time.Now().UnixMilli()
	w := newBuilder()
	w.opcode(opSelectDB).length(0)
	w.opcode(opResizeDB).length(3).length(1)
	w.opcode(typeString).str("k1").str("v1")
	w.expiryMS(now + 60000).opcode(typeString).str("k2").str("v2")
	w.expiryMS(now - 1000).opcode(typeString).str("dead").str("x")

	s := newTestStore(t)
	require.NoError(Load(w.finish(), s))

	v, ok, err := s.Get("k1")
	require.NoError(err)
	require.True(ok)
	require.Equal("v1", v)
	require.Equal(int64(-1), s.PTTL("k1"))

	v, ok, err = s.Get("k2")
	require.NoError(err)
	require.True(ok)
	require.Equal("v2", v)
	require.Greater(s.PTTL("k2"), int64(0))

	// Keys expired at load time are dropped.
	require.Equal(int64(0), s.Exists("dead"))
}

func TestLoadTypedValues(t *testing.T) {
	require := require.New(t)

	w := newBuilder()
	w.opcode(typeList).str("l").length(2).str("a").str("b")
	w.opcode(typeSet).str("s").length(2).str("x").str("y")
	w.opcode(typeHash).str("h").length(1).str("f").str("v")
	w.opcode(typeZSet).str("z").length(2).str("m1").str("1.5").str("m2").str("0.5")

	s := newTestStore(t)
	require.NoError(Load(w.finish(), s))

	vals, err := s.LRange("l", 0, -1)
	require.NoError(err)
	require.Equal([]string{"a", "b"}, vals)

	members, err := s.SMembers("s")
	require.NoError(err)
	require.ElementsMatch([]string{"x", "y"}, members)

	v, ok, err := s.HGet("h", "f")
	require.NoError(err)
	require.True(ok)
	require.Equal("v", v)

	got, err := s.ZRange("z", 0, -1)
	require.NoError(err)
	require.Equal([]store.MemberScore{
		{Member: "m2", Score: 0.5},
		{Member: "m1", Score: 1.5},
	}, got)
}

func TestLoadRejectsGarbage(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	require.Error(Load([]byte("NOTRDB000"), s))
	require.Error(Load([]byte("REDIS00"), s))
	require.Error(Load([]byte("REDISvers\xff"), s))

	// Truncated mid-record.
	w := newBuilder()
	w.opcode(typeString).str("k1")
	require.Error(Load(w.b, s))
}

func TestEmptySnapshotShape(t *testing.T) {
	require := require.New(t)

	b := EmptySnapshot()
	require.Equal("REDIS", string(b[:5]))
	require.Equal(byte(opEOF), b[len(b)-9])
	require.Len(b, 9+1+8)
}

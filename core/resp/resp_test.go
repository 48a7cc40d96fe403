// resp_test.go - RESP framing tests
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

package resp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScalars(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	p.Feed([]byte("+PONG\r\n-ERR boom\r\n:-42\r\n"))

	f, n, err := p.Next()
	require.NoError(err)
	require.Equal(KindSimpleString, f.Kind)
	require.Equal("PONG", f.Str)
	require.Equal(7, n)

	f, _, err = p.Next()
	require.NoError(err)
	require.True(f.IsError())
	require.Equal("ERR boom", f.Str)

	f, n, err = p.Next()
	require.NoError(err)
	require.Equal(KindInteger, f.Kind)
	require.Equal(int64(-42), f.Int)
	require.Equal(6, n)

	_, _, err = p.Next()
	require.Equal(ErrIncomplete, err)
}

func TestParseBulk(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	p.Feed([]byte("$5\r\nhello\r\n$0\r\n\r\n$-1\r\n"))

	f, n, err := p.Next()
	require.NoError(err)
	require.Equal([]byte("hello"), f.Bulk)
	require.Equal(11, n)

	f, _, err = p.Next()
	require.NoError(err)
	require.Empty(f.Bulk)
	require.False(f.Null)

	f, n, err = p.Next()
	require.NoError(err)
	require.True(f.Null)
	require.Equal(5, n)
}

func TestParseArray(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	wire := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	p.Feed(wire)

	f, n, err := p.Next()
	require.NoError(err)
	require.Equal(len(wire), n)

	cmd, args, ok := f.Command()
	require.True(ok)
	require.Equal("SET", cmd)
	require.Equal([]string{"k", "v"}, args)
}

func TestParseIncremental(t *testing.T) {
	require := require.New(t)

	wire := []byte("*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n")
	p := NewParser()
	for i := 0; i < len(wire)-1; i++ {
		p.Feed(wire[i : i+1])
		_, _, err := p.Next()
		require.Equal(ErrIncomplete, err)
	}
	p.Feed(wire[len(wire)-1:])
	f, n, err := p.Next()
	require.NoError(err)
	require.Equal(len(wire), n)
	cmd, args, ok := f.Command()
	require.True(ok)
	require.Equal("ECHO", cmd)
	require.Equal([]string{"hi"}, args)
	require.Zero(p.Buffered())
}

func TestParsePipelined(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	p.Feed([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))
	for i := 0; i < 2; i++ {
		f, _, err := p.Next()
		require.NoError(err)
		cmd, _, ok := f.Command()
		require.True(ok)
		require.Equal("PING", cmd)
	}
	_, _, err := p.Next()
	require.Equal(ErrIncomplete, err)
}

func TestParsePayload(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	p.PrimePayload()
	p.Feed([]byte("$4\r\nRDB!*1\r\n$4\r\nPING\r\n"))

	f, n, err := p.Next()
	require.NoError(err)
	require.Equal(KindPayload, f.Kind)
	require.Equal([]byte("RDB!"), f.Bulk)
	require.Equal(8, n)

	// The same stream returns to normal RESP framing.
	f, _, err = p.Next()
	require.NoError(err)
	cmd, _, ok := f.Command()
	require.True(ok)
	require.Equal("PING", cmd)
}

func TestParsePayloadIncremental(t *testing.T) {
	require := require.New(t)

	p := NewParser()
	p.PrimePayload()
	p.Feed([]byte("$10\r\n01234"))
	_, _, err := p.Next()
	require.Equal(ErrIncomplete, err)

	p.Feed([]byte("56789"))
	f, _, err := p.Next()
	require.NoError(err)
	require.Equal([]byte("0123456789"), f.Bulk)
}

func TestParseErrors(t *testing.T) {
	for _, wire := range []string{
		"?5\r\n",
		":12a\r\n",
		"$2\r\nabcd\r\n",
		"$-7\r\n",
		"*-3\r\n",
		"+foo\n",
	} {
		p := NewParser()
		p.Feed([]byte(wire))
		_, _, err := p.Next()
		require.Error(t, err, "wire %q", wire)
		require.IsType(t, &ParseError{}, err, "wire %q", wire)
	}
}

func TestEncode(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte("+OK\r\n"), SimpleString("OK").Encode())
	require.Equal([]byte("-ERR boom\r\n"), Err("ERR boom").Encode())
	require.Equal([]byte(":7\r\n"), Integer(7).Encode())
	require.Equal([]byte("$2\r\nhi\r\n"), BulkString("hi").Encode())
	require.Equal([]byte("$-1\r\n"), NullBulk().Encode())
	require.Equal([]byte("*-1\r\n"), NullArray().Encode())
	require.Equal([]byte("*0\r\n"), Array().Encode())
	require.Equal(
		[]byte("*2\r\n:1\r\n:2\r\n"),
		Array(Integer(1), Integer(2)).Encode())
	require.Equal(
		[]byte("*3\r\n$9\r\nsubscribe\r\n$4\r\nnews\r\n$2\r\nhi\r\n"),
		BulkArray("subscribe", "news", "hi").Encode())
	require.Equal([]byte("$3\r\nXYZ"), EncodePayload([]byte("XYZ")))
	require.Equal(
		[]byte("*2\r\n:1\r\n+OK\r\n"),
		RawArray(Integer(1).Encode(), SimpleString("OK").Encode()))
}

func TestCommandRoundTrip(t *testing.T) {
	require := require.New(t)

	for _, args := range [][]string{
		{"PING"},
		{"SET", "k", "v"},
		{"SET", "k", "v", "PX", "100"},
		{"XADD", "stream", "1-*", "field", ""},
	} {
		wire := EncodeCommand(args...)
		require.Len(wire, CommandLen(args...))

		p := NewParser()
		p.Feed(wire)
		f, n, err := p.Next()
		require.NoError(err)
		require.Equal(len(wire), n)

		cmd, parsed, ok := f.Command()
		require.True(ok)
		require.Equal(upper(args[0]), cmd)
		require.Equal(args[1:], parsed)
	}
}

func TestCommandCaseFolding(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("*1\r\n$4\r\nping\r\n"))
	f, _, err := p.Next()
	require.NoError(t, err)
	cmd, _, ok := f.Command()
	require.True(t, ok)
	require.Equal(t, "PING", cmd)
}

// cmd_repl.go - replication commands
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
	"strconv"
	"strings"
	"time"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/rdb"
)

func cmdReplConf(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	switch strings.ToLower(args[0]) {
	case "listening-port":
		if len(args) != 2 {
			return errWrongArity("replconf")
		}
		if c != nil {
			c.replListeningPort = args[1]
		}
		return resp.SimpleString("OK")
	case "capa":
		if len(args) < 2 {
			return errWrongArity("replconf")
		}
		if c != nil {
			c.replCapabilities = append(c.replCapabilities, args[1:]...)
		}
		return resp.SimpleString("OK")
	case "ack":
		if len(args) != 2 {
			return errWrongArity("replconf")
		}
		offset, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return errNotInteger
		}
		if c != nil {
			s.repl.onAck(c, offset)
		}
		// ACK is one-way, the primary never replies to it.
		return nil
	default:
		return resp.Err("ERR Unrecognized REPLCONF option: " + args[0])
	}
}

// cmdPSync answers a replica's resynchronization request: the
// FULLRESYNC header, a raw-payload snapshot frame, then the connection
// is promoted to a replica link riding the propagation stream.  The
// whole exchange happens under the exec lock, so no write slips between
// the offset snapshot and the link registration.
func cmdPSync(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR PSYNC is not allowed in this context")
	}

	s.repl.Lock()
	offset := s.repl.offset
	replid := s.repl.replid
	s.repl.Unlock()

	c.Deliver(resp.SimpleString(
		"FULLRESYNC " + replid + " " + strconv.FormatUint(offset, 10)).Encode())
	c.Deliver(resp.EncodePayload(rdb.EmptySnapshot()))

	s.repl.addLink(c)
	c.replicaSink = true
	return nil
}

func cmdWait(s *Server, ctx *execCtx, args []string) *resp.Frame {
	numReplicas, ok := argInt(args[0])
	if !ok || numReplicas < 0 {
		return errNotInteger
	}
	timeoutMS, ok := argInt(args[1])
	if !ok || timeoutMS < 0 {
		return resp.Err("ERR timeout is negative")
	}

	if ctx.replay {
		// No blocking inside a transaction replay.
		s.repl.Lock()
		count := s.repl.countAckedLocked(s.repl.offset)
		s.repl.Unlock()
		return resp.Integer(count)
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeoutMS == 0 {
		timeout = time.Duration(1<<63 - 1)
	}
	return resp.Integer(s.repl.wait(numReplicas, timeout, ctx.cancelCh()))
}

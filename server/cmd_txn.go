// cmd_txn.go - transaction commands
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

import "github.com/mietze-io/mietze/core/resp"

func cmdMulti(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR MULTI is not allowed in this context")
	}
	if c.txnActive {
		return resp.Err("ERR MULTI calls can not be nested")
	}
	c.txnActive = true
	c.txnQueue = nil
	return resp.SimpleString("OK")
}

// cmdExec runs the queued commands as one atomic batch.  It executes
// under the exec lock the dispatcher already holds, so the batch never
// interleaves with commands from other connections, and each queued
// command runs with the replay flag so it is neither re-queued nor
// propagated.  EXEC itself is not a write command, so the batch reaches
// neither the AOF nor the replicas.
func cmdExec(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil || !c.txnActive {
		return resp.Err("ERR EXEC without MULTI")
	}
	queued := c.txnQueue
	c.txnActive = false
	c.txnQueue = nil

	replayCtx := &execCtx{conn: c, replay: true}
	replies := make([]*resp.Frame, 0, len(queued))
	for _, q := range queued {
		var reply *resp.Frame
		if cmd := commandTable[q.name]; cmd != nil {
			reply = s.executeLocked(replayCtx, cmd, q.name, q.args)
		} else {
			reply = resp.Err("ERR unknown command '" + q.name + "'")
		}
		if reply == nil {
			reply = resp.NullBulk()
		}
		replies = append(replies, reply)
	}
	return resp.Array(replies...)
}

func cmdDiscard(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil || !c.txnActive {
		return resp.Err("ERR DISCARD without MULTI")
	}
	c.txnActive = false
	c.txnQueue = nil
	return resp.SimpleString("OK")
}

// cmd_stream.go - stream commands
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
	"strings"
	"time"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/store"
)

func cmdXAdd(s *Server, ctx *execCtx, args []string) *resp.Frame {
	fields := args[2:]
	if len(fields) == 0 || len(fields)%2 != 0 {
		return errWrongArity("xadd")
	}
	id, err := s.store.XAdd(args[0], args[1], fields)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.BulkString(id.String())
}

func parseRangeBound(s string, start bool) (store.StreamID, error) {
	switch s {
	case "-":
		return store.StreamID{}, nil
	case "+":
		return store.StreamID{Ms: ^uint64(0), Seq: store.MaxStreamSeq}, nil
	}
	if start {
		return store.ParseStreamID(s, 0)
	}
	return store.ParseStreamID(s, store.MaxStreamSeq)
}

func encodeStreamEntries(entries []store.StreamEntry) *resp.Frame {
	items := make([]*resp.Frame, 0, len(entries))
	for _, e := range entries {
		items = append(items, resp.Array(
			resp.BulkString(e.ID.String()),
			resp.BulkArray(e.Fields...)))
	}
	return resp.Array(items...)
}

func cmdXRange(s *Server, ctx *execCtx, args []string) *resp.Frame {
	start, err := parseRangeBound(args[1], true)
	if err != nil {
		return resp.Err(err.Error())
	}
	end, err := parseRangeBound(args[2], false)
	if err != nil {
		return resp.Err(err.Error())
	}
	entries, serr := s.store.XRange(args[0], start, end)
	if serr != nil {
		return resp.Err(serr.Error())
	}
	return encodeStreamEntries(entries)
}

func cmdXLen(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.XLen(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdXDel(s *Server, ctx *execCtx, args []string) *resp.Frame {
	ids := make([]store.StreamID, 0, len(args)-1)
	for _, raw := range args[1:] {
		id, err := store.ParseStreamID(raw, 0)
		if err != nil {
			return resp.Err(err.Error())
		}
		ids = append(ids, id)
	}
	n, err := s.store.XDel(args[0], ids)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdXTrim(s *Server, ctx *execCtx, args []string) *resp.Frame {
	// XTRIM key MAXLEN [~|=] n
	if !strings.EqualFold(args[1], "MAXLEN") {
		return resp.Err("ERR syntax error")
	}
	rest := args[2:]
	if rest[0] == "~" || rest[0] == "=" {
		rest = rest[1:]
	}
	if len(rest) != 1 {
		return resp.Err("ERR syntax error")
	}
	maxLen, ok := argInt(rest[0])
	if !ok || maxLen < 0 {
		return errNotInteger
	}
	n, err := s.store.XTrim(args[0], maxLen)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdXRead(s *Server, ctx *execCtx, args []string) *resp.Frame {
	var block time.Duration
	var hasBlock, forever bool

	rest := args
	if strings.EqualFold(rest[0], "BLOCK") {
		if len(rest) < 2 {
			return resp.Err("ERR syntax error")
		}
		ms, ok := argInt(rest[1])
		if !ok || ms < 0 {
			return resp.Err("ERR timeout is not an integer or out of range")
		}
		hasBlock = true
		forever = ms == 0
		block = time.Duration(ms) * time.Millisecond
		rest = rest[2:]
	}
	if len(rest) < 3 || !strings.EqualFold(rest[0], "STREAMS") {
		return resp.Err("ERR syntax error")
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		return resp.Err("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}

	n := len(rest) / 2
	keys := rest[:n]
	after := make([]store.StreamID, n)
	for i, raw := range rest[n:] {
		if raw == "$" {
			// '$' freezes to the stream's tail at registration time.
			id, err := s.store.StreamLastID(keys[i])
			if err != nil {
				return resp.Err(err.Error())
			}
			after[i] = id
			continue
		}
		id, err := store.ParseStreamID(raw, 0)
		if err != nil {
			return resp.Err(err.Error())
		}
		after[i] = id
	}

	// Inside a transaction replay only the immediate attempt runs.
	if !hasBlock || ctx.replay {
		block, forever = 0, false
	}

	results, ok, err := s.store.BlockStreamRead(keys, after, block, forever, ctx.cancelCh())
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok {
		return resp.NullArray()
	}

	items := make([]*resp.Frame, 0, len(results))
	for _, r := range results {
		items = append(items, resp.Array(
			resp.BulkString(r.Key),
			encodeStreamEntries(r.Entries)))
	}
	return resp.Array(items...)
}

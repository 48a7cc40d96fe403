// cmd_string.go - string commands
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
)

func cmdSet(s *Server, ctx *execCtx, args []string) *resp.Frame {
	key, value := args[0], args[1]

	var expiresAt int64
	opts := args[2:]
	for len(opts) > 0 {
		switch strings.ToUpper(opts[0]) {
		case "PX", "EX":
			if len(opts) < 2 {
				return resp.Err("ERR syntax error")
			}
			n, ok := argInt(opts[1])
			if !ok {
				return errNotInteger
			}
			if n <= 0 {
				return resp.Err("ERR invalid expire time in set")
			}
			if strings.ToUpper(opts[0]) == "EX" {
				n *= 1000
			}
			expiresAt = time.Now().UnixMilli() + n
			opts = opts[2:]
		default:
			return resp.Err("ERR syntax error")
		}
	}

	s.store.Set(key, value, expiresAt)
	return resp.SimpleString("OK")
}

func cmdGet(s *Server, ctx *execCtx, args []string) *resp.Frame {
	v, ok, err := s.store.Get(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(v)
}

func incrBy(s *Server, key string, delta int64) *resp.Frame {
	v, err := s.store.IncrBy(key, delta)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(v)
}

func cmdIncr(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return incrBy(s, args[0], 1)
}

func cmdDecr(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return incrBy(s, args[0], -1)
}

func cmdIncrBy(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	return incrBy(s, args[0], n)
}

func cmdDecrBy(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	return incrBy(s, args[0], -n)
}

// cmd_hash.go - hash commands
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

	"github.com/mietze-io/mietze/core/resp"
)

func cmdHSet(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if len(args[1:])%2 != 0 {
		return errWrongArity("hset")
	}
	n, err := s.store.HSet(args[0], args[1:])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdHGet(s *Server, ctx *execCtx, args []string) *resp.Frame {
	v, ok, err := s.store.HGet(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(v)
}

func cmdHDel(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.HDel(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdHGetAll(s *Server, ctx *execCtx, args []string) *resp.Frame {
	fieldValues, err := s.store.HGetAll(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.BulkArray(fieldValues...)
}

func cmdHLen(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.HLen(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdHExists(s *Server, ctx *execCtx, args []string) *resp.Frame {
	ok, err := s.store.HExists(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	if ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHIncrBy(s *Server, ctx *execCtx, args []string) *resp.Frame {
	delta, ok := argInt(args[2])
	if !ok {
		return errNotInteger
	}
	v, err := s.store.HIncrBy(args[0], args[1], delta)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(v)
}

func cmdHIncrByFloat(s *Server, ctx *execCtx, args []string) *resp.Frame {
	delta, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return resp.Err("ERR value is not a valid float")
	}
	v, serr := s.store.HIncrByFloat(args[0], args[1], delta)
	if serr != nil {
		return resp.Err(serr.Error())
	}
	return resp.BulkString(v)
}

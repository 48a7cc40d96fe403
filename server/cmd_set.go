// cmd_set.go - set commands
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
	"sort"

	"github.com/mietze-io/mietze/core/resp"
)

func cmdSAdd(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.SAdd(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdSRem(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.SRem(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdSMembers(s *Server, ctx *execCtx, args []string) *resp.Frame {
	members, err := s.store.SMembers(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	sort.Strings(members)
	return resp.BulkArray(members...)
}

func cmdSIsMember(s *Server, ctx *execCtx, args []string) *resp.Frame {
	ok, err := s.store.SIsMember(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	if ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSCard(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.SCard(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdSPop(s *Server, ctx *execCtx, args []string) *resp.Frame {
	count := int64(1)
	hasCount := len(args) == 2
	if hasCount {
		var ok bool
		if count, ok = argInt(args[1]); !ok {
			return errNotInteger
		}
		if count < 0 {
			return resp.Err("ERR value is out of range, must be positive")
		}
	}
	popped, err := s.store.SPop(args[0], count)
	if err != nil {
		return resp.Err(err.Error())
	}
	if !hasCount {
		if len(popped) == 0 {
			return resp.NullBulk()
		}
		return resp.BulkString(popped[0])
	}
	return resp.BulkArray(popped...)
}

func cmdSMove(s *Server, ctx *execCtx, args []string) *resp.Frame {
	moved, err := s.store.SMove(args[0], args[1], args[2])
	if err != nil {
		return resp.Err(err.Error())
	}
	if moved {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

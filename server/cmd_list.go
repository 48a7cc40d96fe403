// cmd_list.go - list commands
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
	"time"

	"github.com/mietze-io/mietze/core/resp"
)

func cmdLPush(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.LPush(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdRPush(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.RPush(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

// listPop implements the shared LPOP/RPOP reply shape: a single bulk
// without an explicit count, an array with one.
func listPop(s *Server, args []string, fromTail bool) *resp.Frame {
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

	var popped []string
	var err error
	if fromTail {
		popped, err = s.store.RPop(args[0], count)
	} else {
		popped, err = s.store.LPop(args[0], count)
	}
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

func cmdLPop(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return listPop(s, args, false)
}

func cmdRPop(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return listPop(s, args, true)
}

func cmdLLen(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.LLen(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdLRange(s *Server, ctx *execCtx, args []string) *resp.Frame {
	start, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	stop, ok := argInt(args[2])
	if !ok {
		return errNotInteger
	}
	vals, err := s.store.LRange(args[0], start, stop)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.BulkArray(vals...)
}

func cmdLRem(s *Server, ctx *execCtx, args []string) *resp.Frame {
	count, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	n, err := s.store.LRem(args[0], count, args[2])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdLSet(s *Server, ctx *execCtx, args []string) *resp.Frame {
	index, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	if err := s.store.LSet(args[0], index, args[2]); err != nil {
		return resp.Err(err.Error())
	}
	return resp.SimpleString("OK")
}

func cmdLTrim(s *Server, ctx *execCtx, args []string) *resp.Frame {
	start, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	stop, ok := argInt(args[2])
	if !ok {
		return errNotInteger
	}
	if err := s.store.LTrim(args[0], start, stop); err != nil {
		return resp.Err(err.Error())
	}
	return resp.SimpleString("OK")
}

// blockingPop implements BLPOP/BRPOP: the last argument is the timeout
// in (possibly fractional) seconds, zero meaning wait forever.
func blockingPop(s *Server, ctx *execCtx, args []string, fromTail bool) *resp.Frame {
	keys := args[:len(args)-1]
	seconds, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil {
		return resp.Err("ERR timeout is not a float or out of range")
	}
	if seconds < 0 {
		return resp.Err("ERR timeout is negative")
	}

	timeout := time.Duration(seconds * float64(time.Second))
	if ctx.replay {
		// Inside a transaction replay only the immediate attempt runs.
		for _, key := range keys {
			var popped []string
			var err error
			if fromTail {
				popped, err = s.store.RPop(key, 1)
			} else {
				popped, err = s.store.LPop(key, 1)
			}
			if err != nil {
				return resp.Err(err.Error())
			}
			if len(popped) != 0 {
				return resp.BulkArray(key, popped[0])
			}
		}
		return resp.NullArray()
	}
	key, value, ok, serr := s.store.BLPop(keys, timeout, ctx.cancelCh(), fromTail)
	if serr != nil {
		return resp.Err(serr.Error())
	}
	if !ok {
		return resp.NullArray()
	}
	return resp.BulkArray(key, value)
}

func cmdBLPop(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return blockingPop(s, ctx, args, false)
}

func cmdBRPop(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return blockingPop(s, ctx, args, true)
}

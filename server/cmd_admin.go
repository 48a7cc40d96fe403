// cmd_admin.go - connection and keyspace management commands
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
	"strconv"
	"strings"
	"time"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/store"
)

// argInt parses an integer command argument.
func argInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

var errNotInteger = resp.Err(store.ErrNotInteger.Error())

func cmdPing(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if ctx.conn != nil && ctx.conn.inSubscribeMode() {
		msg := ""
		if len(args) == 1 {
			msg = args[0]
		}
		return resp.BulkArray("pong", msg)
	}
	if len(args) == 1 {
		return resp.BulkString(args[0])
	}
	return resp.SimpleString("PONG")
}

func cmdEcho(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.BulkString(args[0])
}

func cmdQuit(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if ctx.conn != nil {
		ctx.conn.quit = true
	}
	return resp.SimpleString("OK")
}

// cmdCommand exists so client bootstrapping (COMMAND DOCS and friends)
// does not fail; the reply carries no descriptions.
func cmdCommand(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.Array()
}

func cmdDel(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.Integer(s.store.Del(args...))
}

func cmdExists(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.Integer(s.store.Exists(args...))
}

func cmdType(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.SimpleString(s.store.Type(args[0]).String())
}

func cmdKeys(s *Server, ctx *execCtx, args []string) *resp.Frame {
	keys := s.store.Keys(args[0])
	sort.Strings(keys)
	return resp.BulkArray(keys...)
}

func expireIn(s *Server, key string, d time.Duration) *resp.Frame {
	if d <= 0 {
		// An expiry in the past removes the key outright.
		if s.store.Del(key) == 0 {
			return resp.Integer(0)
		}
		return resp.Integer(1)
	}
	if !s.store.ExpireAt(key, time.Now().UnixMilli()+d.Milliseconds()) {
		return resp.Integer(0)
	}
	return resp.Integer(1)
}

func cmdExpire(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	return expireIn(s, args[0], time.Duration(n)*time.Second)
}

func cmdPExpire(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	return expireIn(s, args[0], time.Duration(n)*time.Millisecond)
}

func cmdPersist(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if s.store.Persist(args[0]) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdTTL(s *Server, ctx *execCtx, args []string) *resp.Frame {
	pttl := s.store.PTTL(args[0])
	if pttl < 0 {
		return resp.Integer(pttl)
	}
	return resp.Integer((pttl + 999) / 1000)
}

func cmdPTTL(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.Integer(s.store.PTTL(args[0]))
}

func cmdConfig(s *Server, ctx *execCtx, args []string) *resp.Frame {
	switch strings.ToUpper(args[0]) {
	case "GET":
		if len(args) < 2 {
			return errWrongArity("config|get")
		}
		return s.configGet(args[1:])
	default:
		return resp.Err("ERR Unknown CONFIG subcommand or wrong number of arguments for '" + args[0] + "'")
	}
}

func (s *Server) configGet(patterns []string) *resp.Frame {
	appendonly := "no"
	if s.cfg.AppendOnly.Enable {
		appendonly = "yes"
	}
	params := map[string]string{
		"dir":            s.cfg.Server.DataDir,
		"dbfilename":     s.cfg.Server.DBFilename,
		"port":           strconv.Itoa(s.cfg.Server.Port),
		"appendonly":     appendonly,
		"appendfilename": s.cfg.AppendOnly.Filename,
	}

	matched := make(map[string]bool)
	for _, pattern := range patterns {
		for name := range params {
			if store.Match(pattern, name) {
				matched[name] = true
			}
		}
	}
	names := make([]string, 0, len(matched))
	for name := range matched {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]*resp.Frame, 0, 2*len(names))
	for _, name := range names {
		items = append(items, resp.BulkString(name), resp.BulkString(params[name]))
	}
	return resp.Array(items...)
}

// cmd_pubsub.go - pub/sub commands
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

// The (un)subscribe commands emit one confirmation array per channel,
// so they deliver directly to the connection's send queue and return no
// reply frame of their own.

func cmdSubscribe(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR SUBSCRIBE is not allowed in this context")
	}
	for _, channel := range args {
		if _, ok := c.subs[channel]; !ok {
			c.subs[channel] = struct{}{}
			s.broker.Subscribe(c, channel)
		}
		c.Deliver(resp.Array(
			resp.BulkString("subscribe"),
			resp.BulkString(channel),
			resp.Integer(c.subscriptionCount())).Encode())
	}
	return nil
}

func cmdUnsubscribe(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR UNSUBSCRIBE is not allowed in this context")
	}

	channels := args
	if len(channels) == 0 {
		channels = make([]string, 0, len(c.subs))
		for channel := range c.subs {
			channels = append(channels, channel)
		}
		sort.Strings(channels)
		if len(channels) == 0 {
			c.Deliver(resp.Array(
				resp.BulkString("unsubscribe"),
				resp.NullBulk(),
				resp.Integer(0)).Encode())
			return nil
		}
	}

	for _, channel := range channels {
		if _, ok := c.subs[channel]; ok {
			delete(c.subs, channel)
			s.broker.Unsubscribe(c, channel)
		}
		c.Deliver(resp.Array(
			resp.BulkString("unsubscribe"),
			resp.BulkString(channel),
			resp.Integer(c.subscriptionCount())).Encode())
	}
	return nil
}

func cmdPSubscribe(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR PSUBSCRIBE is not allowed in this context")
	}
	for _, pattern := range args {
		if _, ok := c.psubs[pattern]; !ok {
			c.psubs[pattern] = struct{}{}
			s.broker.PSubscribe(c, pattern)
		}
		c.Deliver(resp.Array(
			resp.BulkString("psubscribe"),
			resp.BulkString(pattern),
			resp.Integer(c.subscriptionCount())).Encode())
	}
	return nil
}

func cmdPUnsubscribe(s *Server, ctx *execCtx, args []string) *resp.Frame {
	c := ctx.conn
	if c == nil {
		return resp.Err("ERR PUNSUBSCRIBE is not allowed in this context")
	}

	patterns := args
	if len(patterns) == 0 {
		patterns = make([]string, 0, len(c.psubs))
		for pattern := range c.psubs {
			patterns = append(patterns, pattern)
		}
		sort.Strings(patterns)
		if len(patterns) == 0 {
			c.Deliver(resp.Array(
				resp.BulkString("punsubscribe"),
				resp.NullBulk(),
				resp.Integer(0)).Encode())
			return nil
		}
	}

	for _, pattern := range patterns {
		if _, ok := c.psubs[pattern]; ok {
			delete(c.psubs, pattern)
			s.broker.PUnsubscribe(c, pattern)
		}
		c.Deliver(resp.Array(
			resp.BulkString("punsubscribe"),
			resp.BulkString(pattern),
			resp.Integer(c.subscriptionCount())).Encode())
	}
	return nil
}

func cmdPublish(s *Server, ctx *execCtx, args []string) *resp.Frame {
	return resp.Integer(s.broker.Publish(args[0], args[1]))
}

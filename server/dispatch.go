// dispatch.go - command dispatch
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

	"github.com/mietze-io/mietze/core/resp"
)

// execCtx is the execution context a command runs under.  The replay
// flag marks commands originating from replica ingest, append-log
// replay, or a transaction's EXEC, which suppresses propagation,
// append-log writes and transaction queuing.
type execCtx struct {
	conn   *incomingConn
	replay bool
}

func (ctx *execCtx) cancelCh() <-chan interface{} {
	if ctx.conn == nil {
		return nil
	}
	return ctx.conn.HaltCh()
}

type handlerFn func(s *Server, ctx *execCtx, args []string) *resp.Frame

// command describes one dispatch table entry.  minArgs/maxArgs bound
// the argument count (maxArgs < 0 is unbounded), write marks the
// command for append-log and propagation, and blocking commands run
// outside the exec lock so a parked connection stalls nobody else.
type command struct {
	handler  handlerFn
	minArgs  int
	maxArgs  int
	write    bool
	blocking bool
}

// subscribeModeAllowed is the command set a connection in subscription
// mode may still issue.
var subscribeModeAllowed = map[string]bool{
	"PING":         true,
	"SUBSCRIBE":    true,
	"UNSUBSCRIBE":  true,
	"PSUBSCRIBE":   true,
	"PUNSUBSCRIBE": true,
	"QUIT":         true,
}

// dispatch resolves and executes one frame received on a connection (or
// synthesized by replay), returning the reply frame, nil when no reply
// is to be written.
func (s *Server) dispatch(ctx *execCtx, f *resp.Frame) *resp.Frame {
	name, args, ok := f.Command()
	if !ok {
		return resp.Err("ERR Protocol error: expected an array of bulk strings")
	}

	cmd := commandTable[name]
	if cmd == nil {
		commandErrors.Inc()
		return resp.Err("ERR unknown command '" + string(f.Items[0].Bulk) + "'")
	}
	commandsProcessed.WithLabelValues(name).Inc()

	if ctx.conn != nil && ctx.conn.inSubscribeMode() && !subscribeModeAllowed[name] {
		commandErrors.Inc()
		return resp.Err("ERR Can't execute '" + strings.ToLower(name) +
			"': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context")
	}

	if ctx.conn != nil && ctx.conn.txnActive && !ctx.replay &&
		name != "MULTI" && name != "EXEC" && name != "DISCARD" {
		ctx.conn.txnQueue = append(ctx.conn.txnQueue, queuedCommand{name: name, args: args})
		return resp.SimpleString("QUEUED")
	}

	if cmd.blocking {
		return s.execute(ctx, cmd, name, args)
	}

	s.execLock.Lock()
	defer s.execLock.Unlock()
	return s.executeLocked(ctx, cmd, name, args)
}

// execute runs a blocking command without holding the exec lock; the
// keyspace's own exclusion keeps the immediate path atomic.
func (s *Server) execute(ctx *execCtx, cmd *command, name string, args []string) *resp.Frame {
	if reply := checkArity(cmd, name, args); reply != nil {
		return reply
	}
	reply := cmd.handler(s, ctx, args)
	if reply != nil && reply.IsError() {
		commandErrors.Inc()
	}
	return reply
}

// executeLocked runs a command under the exec lock and, for an accepted
// primary-side write, feeds the append-only log and the replica links.
// Callers hold the exec lock.
func (s *Server) executeLocked(ctx *execCtx, cmd *command, name string, args []string) *resp.Frame {
	if reply := checkArity(cmd, name, args); reply != nil {
		commandErrors.Inc()
		return reply
	}

	reply := cmd.handler(s, ctx, args)

	if reply != nil && reply.IsError() {
		commandErrors.Inc()
		return reply
	}

	if cmd.write && !ctx.replay && !s.cfg.IsReplica() {
		wire := resp.EncodeCommand(append([]string{name}, args...)...)
		if s.appendLog != nil {
			s.appendLog.Append(wire)
		}
		s.repl.propagate(wire)
	}
	return reply
}

func checkArity(cmd *command, name string, args []string) *resp.Frame {
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return errWrongArity(name)
	}
	return nil
}

func errWrongArity(name string) *resp.Frame {
	return resp.Err("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
}

var commandTable map[string]*command

func init() {
	commandTable = map[string]*command{
		// Connection and keyspace management.
		"PING":    {handler: cmdPing, maxArgs: 1},
		"ECHO":    {handler: cmdEcho, minArgs: 1, maxArgs: 1},
		"QUIT":    {handler: cmdQuit, maxArgs: 0},
		"COMMAND": {handler: cmdCommand, maxArgs: -1},
		"DEL":     {handler: cmdDel, minArgs: 1, maxArgs: -1, write: true},
		"EXISTS":  {handler: cmdExists, minArgs: 1, maxArgs: -1},
		"TYPE":    {handler: cmdType, minArgs: 1, maxArgs: 1},
		"KEYS":    {handler: cmdKeys, minArgs: 1, maxArgs: 1},
		"EXPIRE":  {handler: cmdExpire, minArgs: 2, maxArgs: 2, write: true},
		"PEXPIRE": {handler: cmdPExpire, minArgs: 2, maxArgs: 2, write: true},
		"PERSIST": {handler: cmdPersist, minArgs: 1, maxArgs: 1, write: true},
		"TTL":     {handler: cmdTTL, minArgs: 1, maxArgs: 1},
		"PTTL":    {handler: cmdPTTL, minArgs: 1, maxArgs: 1},
		"CONFIG":  {handler: cmdConfig, minArgs: 1, maxArgs: -1},
		"INFO":    {handler: cmdInfo, maxArgs: 1},

		// Strings.
		"SET":    {handler: cmdSet, minArgs: 2, maxArgs: -1, write: true},
		"GET":    {handler: cmdGet, minArgs: 1, maxArgs: 1},
		"INCR":   {handler: cmdIncr, minArgs: 1, maxArgs: 1, write: true},
		"DECR":   {handler: cmdDecr, minArgs: 1, maxArgs: 1, write: true},
		"INCRBY": {handler: cmdIncrBy, minArgs: 2, maxArgs: 2, write: true},
		"DECRBY": {handler: cmdDecrBy, minArgs: 2, maxArgs: 2, write: true},

		// Lists.
		"LPUSH":  {handler: cmdLPush, minArgs: 2, maxArgs: -1, write: true},
		"RPUSH":  {handler: cmdRPush, minArgs: 2, maxArgs: -1, write: true},
		"LPOP":   {handler: cmdLPop, minArgs: 1, maxArgs: 2, write: true},
		"RPOP":   {handler: cmdRPop, minArgs: 1, maxArgs: 2, write: true},
		"LLEN":   {handler: cmdLLen, minArgs: 1, maxArgs: 1},
		"LRANGE": {handler: cmdLRange, minArgs: 3, maxArgs: 3},
		"LREM":   {handler: cmdLRem, minArgs: 3, maxArgs: 3, write: true},
		"LSET":   {handler: cmdLSet, minArgs: 3, maxArgs: 3, write: true},
		"LTRIM":  {handler: cmdLTrim, minArgs: 3, maxArgs: 3, write: true},
		"BLPOP":  {handler: cmdBLPop, minArgs: 2, maxArgs: -1, blocking: true},
		"BRPOP":  {handler: cmdBRPop, minArgs: 2, maxArgs: -1, blocking: true},

		// Hashes.
		"HSET":         {handler: cmdHSet, minArgs: 3, maxArgs: -1, write: true},
		"HGET":         {handler: cmdHGet, minArgs: 2, maxArgs: 2},
		"HDEL":         {handler: cmdHDel, minArgs: 2, maxArgs: -1, write: true},
		"HGETALL":      {handler: cmdHGetAll, minArgs: 1, maxArgs: 1},
		"HLEN":         {handler: cmdHLen, minArgs: 1, maxArgs: 1},
		"HEXISTS":      {handler: cmdHExists, minArgs: 2, maxArgs: 2},
		"HINCRBY":      {handler: cmdHIncrBy, minArgs: 3, maxArgs: 3, write: true},
		"HINCRBYFLOAT": {handler: cmdHIncrByFloat, minArgs: 3, maxArgs: 3, write: true},

		// Sets.
		"SADD":      {handler: cmdSAdd, minArgs: 2, maxArgs: -1, write: true},
		"SREM":      {handler: cmdSRem, minArgs: 2, maxArgs: -1, write: true},
		"SMEMBERS":  {handler: cmdSMembers, minArgs: 1, maxArgs: 1},
		"SISMEMBER": {handler: cmdSIsMember, minArgs: 2, maxArgs: 2},
		"SCARD":     {handler: cmdSCard, minArgs: 1, maxArgs: 1},
		"SPOP":      {handler: cmdSPop, minArgs: 1, maxArgs: 2, write: true},
		"SMOVE":     {handler: cmdSMove, minArgs: 3, maxArgs: 3, write: true},

		// Sorted sets and geo.
		"ZADD":      {handler: cmdZAdd, minArgs: 3, maxArgs: -1, write: true},
		"ZRANGE":    {handler: cmdZRange, minArgs: 3, maxArgs: 4},
		"ZRANK":     {handler: cmdZRank, minArgs: 2, maxArgs: 2},
		"ZSCORE":    {handler: cmdZScore, minArgs: 2, maxArgs: 2},
		"ZREM":      {handler: cmdZRem, minArgs: 2, maxArgs: -1, write: true},
		"ZCARD":     {handler: cmdZCard, minArgs: 1, maxArgs: 1},
		"ZINCRBY":   {handler: cmdZIncrBy, minArgs: 3, maxArgs: 3, write: true},
		"GEOADD":    {handler: cmdGeoAdd, minArgs: 4, maxArgs: -1, write: true},
		"GEOPOS":    {handler: cmdGeoPos, minArgs: 1, maxArgs: -1},
		"GEODIST":   {handler: cmdGeoDist, minArgs: 3, maxArgs: 4},
		"GEOSEARCH": {handler: cmdGeoSearch, minArgs: 7, maxArgs: -1},

		// Streams.
		"XADD":   {handler: cmdXAdd, minArgs: 4, maxArgs: -1, write: true},
		"XRANGE": {handler: cmdXRange, minArgs: 3, maxArgs: 3},
		"XREAD":  {handler: cmdXRead, minArgs: 3, maxArgs: -1, blocking: true},
		"XLEN":   {handler: cmdXLen, minArgs: 1, maxArgs: 1},
		"XDEL":   {handler: cmdXDel, minArgs: 2, maxArgs: -1, write: true},
		"XTRIM":  {handler: cmdXTrim, minArgs: 3, maxArgs: 4, write: true},

		// Transactions.
		"MULTI":   {handler: cmdMulti, maxArgs: 0},
		"EXEC":    {handler: cmdExec, maxArgs: 0},
		"DISCARD": {handler: cmdDiscard, maxArgs: 0},

		// Pub/Sub.
		"SUBSCRIBE":    {handler: cmdSubscribe, minArgs: 1, maxArgs: -1},
		"UNSUBSCRIBE":  {handler: cmdUnsubscribe, maxArgs: -1},
		"PSUBSCRIBE":   {handler: cmdPSubscribe, minArgs: 1, maxArgs: -1},
		"PUNSUBSCRIBE": {handler: cmdPUnsubscribe, maxArgs: -1},
		"PUBLISH":      {handler: cmdPublish, minArgs: 2, maxArgs: 2},

		// Replication.
		"REPLCONF": {handler: cmdReplConf, minArgs: 1, maxArgs: -1},
		"PSYNC":    {handler: cmdPSync, minArgs: 2, maxArgs: 2},
		"WAIT":     {handler: cmdWait, minArgs: 2, maxArgs: 2, blocking: true},
	}
}

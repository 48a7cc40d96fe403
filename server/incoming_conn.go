// incoming_conn.go - per-connection worker and connection state
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
	"container/list"
	"net"

	"gopkg.in/eapache/channels.v1"
	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/core/worker"
)

type queuedCommand struct {
	name string
	args []string
}

// incomingConn is the state of one accepted TCP connection: the read
// worker feeding the parser, the writer draining the unbounded send
// queue, and the connection-scoped command state (transaction queue,
// subscription sets, replica-sink role).
type incomingConn struct {
	worker.Worker

	s    *Server
	log  *logging.Logger
	conn net.Conn
	e    *list.Element

	sendQ *channels.InfiniteChannel

	// Connection-scoped dispatcher state.  Only the connection's own
	// read worker touches these, under the dispatcher's exclusion.
	txnActive bool
	txnQueue  []queuedCommand
	subs      map[string]struct{}
	psubs     map[string]struct{}

	// Recorded by REPLCONF before PSYNC promotes the connection to a
	// replica link.
	replListeningPort string
	replCapabilities  []string

	// replicaSink suppresses replies once the connection carries the
	// propagation stream.
	replicaSink bool

	quit     bool
	closedCh chan interface{}
}

func newIncomingConn(s *Server, conn net.Conn) *incomingConn {
	c := &incomingConn{
		s:        s,
		conn:     conn,
		sendQ:    channels.NewInfiniteChannel(),
		subs:     make(map[string]struct{}),
		psubs:    make(map[string]struct{}),
		closedCh: make(chan interface{}),
	}
	c.log = s.logBackend.GetLogger("conn:" + conn.RemoteAddr().String())
	c.log.Debugf("New incoming connection.")

	// Note: The worker is spawned after the struct is added to the
	// server's connection list.

	return c
}

func (c *incomingConn) start() {
	c.Go(c.worker)
	c.Go(c.writerWorker)
	c.Go(func() {
		// Unblock the read worker on Halt, and exit rather than
		// linger when the connection winds down on its own.
		select {
		case <-c.HaltCh():
			c.conn.Close()
		case <-c.closedCh:
		}
	})
}

// Deliver enqueues an encoded frame for the connection without
// blocking.  It is the pubsub.Subscriber implementation and the
// propagation path to replica links.
func (c *incomingConn) Deliver(frame []byte) {
	c.sendQ.In() <- frame
}

func (c *incomingConn) worker() {
	defer func() {
		c.log.Debugf("Closing.")
		// Deregister first: once onClosedConn returns neither the
		// broker nor the replication state can deliver to the send
		// queue, making it safe to close.
		c.s.onClosedConn(c)
		c.sendQ.Close()
		close(c.closedCh)
	}()

	parser := resp.NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.log.Debugf("Read failed: %v", err)
			return
		}
		parser.Feed(buf[:n])

		for {
			f, _, err := parser.Next()
			if err == resp.ErrIncomplete {
				break
			}
			if err != nil {
				// A framing violation poisons the connection.
				c.log.Warningf("Poisoned by framing error: %v", err)
				c.Deliver(resp.Err("ERR Protocol error").Encode())
				return
			}

			reply := c.s.dispatch(&execCtx{conn: c}, f)
			if reply != nil && !c.replicaSink {
				c.Deliver(reply.Encode())
			}
			if c.quit {
				return
			}
		}
	}
}

func (c *incomingConn) writerWorker() {
	defer c.conn.Close()

	// Out() keeps draining buffered frames after Close, so replies
	// enqueued right before connection teardown still reach the peer.
	for raw := range c.sendQ.Out() {
		if _, err := c.conn.Write(raw.([]byte)); err != nil {
			c.log.Debugf("Write failed: %v", err)
			return
		}
	}
}

// inSubscribeMode returns true once the connection holds any channel or
// pattern subscription.
func (c *incomingConn) inSubscribeMode() bool {
	return len(c.subs)+len(c.psubs) > 0
}

func (c *incomingConn) subscriptionCount() int64 {
	return int64(len(c.subs) + len(c.psubs))
}

// releaseState drops everything the connection holds in shared
// structures: subscriptions and the transaction queue.  Blocking
// waiters unwind through HaltCh.
func (c *incomingConn) releaseState() {
	if len(c.subs)+len(c.psubs) > 0 {
		chans := make([]string, 0, len(c.subs))
		for ch := range c.subs {
			chans = append(chans, ch)
		}
		patterns := make([]string, 0, len(c.psubs))
		for p := range c.psubs {
			patterns = append(patterns, p)
		}
		c.s.broker.Drop(c, chans, patterns)
	}
	c.txnQueue = nil
	c.txnActive = false
}

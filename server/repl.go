// repl.go - primary-side replication state
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
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/mietze-io/mietze/core/resp"
)

// replicaLink is one attached replica: the connection carrying the
// propagation stream plus its acknowledged byte offset.
type replicaLink struct {
	conn *incomingConn
	e    *list.Element

	listeningPort string
	capabilities  []string
	ackOffset     uint64
}

// ackBarrier is a pending WAIT: each incoming ACK pokes the channel so
// the waiter can recount.
type ackBarrier struct {
	ch chan struct{}
}

// replicationState is the primary-side replication state: the
// replication id, the global propagated-bytes offset, and the set of
// attached replica links.
type replicationState struct {
	sync.Mutex

	s *Server

	replid string
	offset uint64

	links    *list.List
	barriers map[*ackBarrier]struct{}
}

func newReplicationState(s *Server) *replicationState {
	return &replicationState{
		s:        s,
		replid:   newReplID(),
		links:    list.New(),
		barriers: make(map[*ackBarrier]struct{}),
	}
}

// newReplID generates a fresh 40 hex character replication id.  Ids are
// per-boot: without partial resynchronization there is nothing to gain
// from persisting them.
func newReplID() string {
	var raw [20]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		panic("server: failed to generate replication id: " + err.Error())
	}
	return hex.EncodeToString(raw[:])
}

// addLink promotes the connection to an attached replica link, carrying
// over the parameters recorded during the REPLCONF exchange.
func (r *replicationState) addLink(c *incomingConn) *replicaLink {
	r.Lock()
	defer r.Unlock()

	link := &replicaLink{
		conn:          c,
		listeningPort: c.replListeningPort,
		capabilities:  c.replCapabilities,
	}
	link.e = r.links.PushBack(link)
	connectedReplicas.Inc()
	r.s.log.Noticef("Replica attached from %v (listening port %v), %d link(s).",
		c.conn.RemoteAddr(), link.listeningPort, r.links.Len())
	return link
}

// removeLink detaches the replica link riding on c, if any.  Other
// links are undisturbed.
func (r *replicationState) removeLink(c *incomingConn) {
	r.Lock()
	defer r.Unlock()

	for e := r.links.Front(); e != nil; e = e.Next() {
		link := e.Value.(*replicaLink)
		if link.conn != c {
			continue
		}
		r.links.Remove(e)
		connectedReplicas.Dec()
		r.s.log.Noticef("Replica %v detached, %d link(s) remain.",
			c.conn.RemoteAddr(), r.links.Len())
		// A WAIT may now be unable to reach its count, let it recount
		// against the smaller link set.
		r.pokeBarriersLocked()
		return
	}
}

// propagate forwards one write command's wire form to every link and
// advances the global offset.  Callers hold the server's exec lock, so
// the propagation order matches command acceptance order on every link.
func (r *replicationState) propagate(wire []byte) {
	r.Lock()
	defer r.Unlock()

	r.offset += uint64(len(wire))
	propagatedBytes.Add(float64(len(wire)))
	for e := r.links.Front(); e != nil; e = e.Next() {
		e.Value.(*replicaLink).conn.Deliver(wire)
	}
}

// onAck records a replica's acknowledged offset and pokes pending WAIT
// barriers.
func (r *replicationState) onAck(c *incomingConn, offset uint64) {
	r.Lock()
	defer r.Unlock()

	for e := r.links.Front(); e != nil; e = e.Next() {
		link := e.Value.(*replicaLink)
		if link.conn == c {
			link.ackOffset = offset
			break
		}
	}
	r.pokeBarriersLocked()
}

func (r *replicationState) pokeBarriersLocked() {
	for b := range r.barriers {
		select {
		case b.ch <- struct{}{}:
		default:
		}
	}
}

func (r *replicationState) countAckedLocked(required uint64) int64 {
	var n int64
	for e := r.links.Front(); e != nil; e = e.Next() {
		if e.Value.(*replicaLink).ackOffset >= required {
			n++
		}
	}
	return n
}

func (r *replicationState) numLinks() int {
	r.Lock()
	defer r.Unlock()
	return r.links.Len()
}

// wait implements the WAIT barrier: it records the current offset as
// the requirement, solicits ACKs, and blocks until numReplicas links
// acknowledge at least that offset or the timeout expires.  The count
// observed is returned either way, and the barrier is torn down on
// every path.
func (r *replicationState) wait(numReplicas int64, timeout time.Duration, cancel <-chan interface{}) int64 {
	r.Lock()
	if numReplicas == 0 || r.links.Len() == 0 {
		r.Unlock()
		return 0
	}
	required := r.offset
	if count := r.countAckedLocked(required); count >= numReplicas {
		r.Unlock()
		return count
	}
	b := &ackBarrier{ch: make(chan struct{}, 1)}
	r.barriers[b] = struct{}{}
	r.Unlock()

	defer func() {
		r.Lock()
		delete(r.barriers, b)
		r.Unlock()
	}()

	// The GETACK is itself part of the propagation stream, its bytes
	// join the global offset after the requirement was recorded.
	r.s.execLock.Lock()
	r.propagate(resp.EncodeCommand("REPLCONF", "GETACK", "*"))
	r.s.execLock.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.Lock()
		count := r.countAckedLocked(required)
		satisfied := count >= numReplicas
		r.Unlock()
		if satisfied {
			return count
		}

		select {
		case <-b.ch:
		case <-timer.C:
			r.Lock()
			count = r.countAckedLocked(required)
			r.Unlock()
			return count
		case <-cancel:
			return 0
		}
	}
}

// replica.go - replica-side replication session
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
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/core/worker"
	"github.com/mietze-io/mietze/server/rdb"
)

const (
	replicaConnectTimeout  = 10 * time.Second
	replicaRetryIncrement  = time.Second
	replicaMaxRetryDelay   = 30 * time.Second
	replicaHandshakeWindow = 30 * time.Second
)

// HandshakeError is the error used to indicate that the primary broke
// the replication handshake protocol.
type HandshakeError struct {
	// Err is the underlying violation.
	Err error
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("replica: handshake error: %v", e.Err)
}

func newHandshakeError(f string, a ...interface{}) error {
	return &HandshakeError{Err: fmt.Errorf(f, a...)}
}

// replicaSession drives the replica side of replication: it dials the
// primary, walks the handshake, ingests the snapshot, then applies the
// propagation stream, maintaining the applied byte offset.  The
// handshake replies and the propagation stream ride the same socket and
// the same parser.
type replicaSession struct {
	worker.Worker

	s   *Server
	log *logging.Logger

	primaryAddr string

	// appliedOffset is the total bytes of propagated commands consumed
	// from the primary link.
	appliedOffset uint64

	retryDelay time.Duration
}

func newReplicaSession(s *Server) *replicaSession {
	r := s.cfg.Replication
	return &replicaSession{
		s:           s,
		log:         s.logBackend.GetLogger("replica"),
		primaryAddr: net.JoinHostPort(r.PrimaryHost, strconv.Itoa(r.PrimaryPort)),
	}
}

func (r *replicaSession) start() {
	r.Go(r.connectWorker)
}

// offset returns the current applied offset.
func (r *replicaSession) offset() uint64 {
	return atomic.LoadUint64(&r.appliedOffset)
}

func (r *replicaSession) connectWorker() {
	defer r.log.Debugf("Terminating connect worker.")

	for {
		select {
		case <-r.HaltCh():
			return
		case <-time.After(r.retryDelay):
		}

		r.log.Debugf("Dialing primary: %v", r.primaryAddr)
		conn, err := net.DialTimeout("tcp", r.primaryAddr, replicaConnectTimeout)
		if err != nil {
			r.log.Warningf("Failed to connect to primary: %v", err)
			r.backoff()
			continue
		}

		r.onPrimaryConn(conn)

		select {
		case <-r.HaltCh():
			return
		default:
		}
		r.log.Warningf("Primary link lost, will reconnect.")
		r.backoff()
	}
}

func (r *replicaSession) backoff() {
	r.retryDelay += replicaRetryIncrement
	if r.retryDelay > replicaMaxRetryDelay {
		r.retryDelay = replicaMaxRetryDelay
	}
}

// primaryLink bundles the socket with the session's single dual-role
// parser, so the handshake and the streaming phase share one buffer and
// offset.
type primaryLink struct {
	conn   net.Conn
	parser *resp.Parser
	buf    []byte
}

// next returns the next frame from the primary together with its exact
// wire length.
func (l *primaryLink) next() (*resp.Frame, int, error) {
	for {
		if f, n, err := l.parser.Next(); err != resp.ErrIncomplete {
			return f, n, err
		}
		n, err := l.conn.Read(l.buf)
		if err != nil {
			return nil, 0, err
		}
		l.parser.Feed(l.buf[:n])
	}
}

func (l *primaryLink) send(args ...string) error {
	_, err := l.conn.Write(resp.EncodeCommand(args...))
	return err
}

func (r *replicaSession) onPrimaryConn(conn net.Conn) {
	defer func() {
		r.log.Debugf("Primary connection closed.")
		conn.Close()
	}()

	// Unblock reads on halt.
	haltedCh := make(chan interface{})
	defer close(haltedCh)
	go func() {
		select {
		case <-r.HaltCh():
			conn.Close()
		case <-haltedCh:
		}
	}()

	link := &primaryLink{
		conn:   conn,
		parser: resp.NewParser(),
		buf:    make([]byte, 65536),
	}

	conn.SetDeadline(time.Now().Add(replicaHandshakeWindow))
	if err := r.handshake(link); err != nil {
		r.log.Errorf("Handshake failed: %v", err)
		return
	}
	conn.SetDeadline(time.Time{})
	r.retryDelay = 0
	r.log.Noticef("Full resynchronization complete, streaming from %v.", r.primaryAddr)

	if err := r.streamWorker(link); err != nil {
		r.log.Warningf("Streaming terminated: %v", err)
	}
}

// handshake walks PING, the two REPLCONFs, PSYNC, the FULLRESYNC reply
// and the snapshot transfer.
func (r *replicaSession) handshake(link *primaryLink) error {
	expectSimple := func(want string) error {
		f, _, err := link.next()
		if err != nil {
			return err
		}
		if f.Kind != resp.KindSimpleString || f.Str != want {
			return newHandshakeError("expected +%v, got %v", want, f.Str)
		}
		return nil
	}

	if err := link.send("PING"); err != nil {
		return err
	}
	if err := expectSimple("PONG"); err != nil {
		return err
	}

	port := strconv.Itoa(r.s.cfg.Server.Port)
	if err := link.send("REPLCONF", "listening-port", port); err != nil {
		return err
	}
	if err := expectSimple("OK"); err != nil {
		return err
	}
	if err := link.send("REPLCONF", "capa", "psync2"); err != nil {
		return err
	}
	if err := expectSimple("OK"); err != nil {
		return err
	}

	if err := link.send("PSYNC", "?", "-1"); err != nil {
		return err
	}
	f, _, err := link.next()
	if err != nil {
		return err
	}
	if f.Kind != resp.KindSimpleString || !strings.HasPrefix(f.Str, "FULLRESYNC ") {
		return newHandshakeError("expected FULLRESYNC, got %v", f.Str)
	}
	fields := strings.Fields(f.Str)
	if len(fields) != 3 {
		return newHandshakeError("malformed FULLRESYNC: %v", f.Str)
	}
	startOffset, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return newHandshakeError("malformed FULLRESYNC offset: %v", fields[2])
	}
	r.log.Debugf("FULLRESYNC replid %v offset %d.", fields[1], startOffset)

	// The snapshot arrives as a single raw payload frame with no
	// trailing CRLF.
	link.parser.PrimePayload()
	f, _, err = link.next()
	if err != nil {
		return err
	}
	if f.Kind != resp.KindPayload {
		return newHandshakeError("expected snapshot payload, got frame type %c", f.Kind)
	}
	r.s.store.Reset()
	if len(f.Bulk) != 0 {
		if err := rdb.Load(f.Bulk, r.s.store); err != nil {
			r.log.Warningf("Discarding undecodable snapshot (%d bytes): %v", len(f.Bulk), err)
		}
	}
	atomic.StoreUint64(&r.appliedOffset, startOffset)
	return nil
}

// streamWorker applies the propagation stream: every array frame is a
// write to apply under the replay flag, with no reply and no
// re-propagation.  The frame's wire bytes join the applied offset after
// it has been processed, so a GETACK answers with the offset of
// everything before it.
func (r *replicaSession) streamWorker(link *primaryLink) error {
	ctx := &execCtx{replay: true}
	for {
		select {
		case <-r.HaltCh():
			return ErrShutdown
		default:
		}

		f, n, err := link.next()
		if err != nil {
			return err
		}

		name, args, ok := f.Command()
		if !ok {
			r.log.Warningf("Ignoring non-command frame from primary.")
			atomic.AddUint64(&r.appliedOffset, uint64(n))
			continue
		}

		switch {
		case name == "PING":
			// Keepalive, only the byte accounting matters.
		case name == "REPLCONF" && len(args) >= 1 && strings.EqualFold(args[0], "GETACK"):
			ack := strconv.FormatUint(r.offset(), 10)
			if err := link.send("REPLCONF", "ACK", ack); err != nil {
				return err
			}
			r.log.Debugf("Acknowledged offset %v.", ack)
		default:
			if reply := r.s.dispatch(ctx, f); reply != nil && reply.IsError() {
				r.log.Warningf("Failed to apply %v: %v", name, reply.Str)
			}
		}
		atomic.AddUint64(&r.appliedOffset, uint64(n))
	}
}

// server.go - mietze server
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

// Package server provides the mietze data store server: the TCP
// listener, per-connection workers, the command dispatcher, and the
// replication machinery tying together the keyspace, the pub/sub
// broker, the append-only log and the snapshot loader.
package server

import (
	"container/list"
	"fmt"
	"net"
	"os"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/log"
	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/core/worker"
	"github.com/mietze-io/mietze/server/aof"
	"github.com/mietze-io/mietze/server/config"
	"github.com/mietze-io/mietze/server/pubsub"
	"github.com/mietze-io/mietze/server/rdb"
	"github.com/mietze-io/mietze/server/store"
)

// ErrShutdown is the error returned when the server is shutting down.
var ErrShutdown = fmt.Errorf("server: shutdown requested")

// Server is a mietze server instance.
type Server struct {
	worker.Worker

	cfg        *config.Config
	logBackend *log.Backend
	log        *logging.Logger

	store  *store.Store
	broker *pubsub.Broker

	appendLog *aof.Log

	// execLock serializes command execution together with propagation
	// accounting, so commands across connections observe a total order
	// and the global offset advances atomically with forwarding.
	execLock sync.Mutex

	repl    *replicationState
	replica *replicaSession

	listener net.Listener

	connLock sync.Mutex
	conns    *list.List

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

// New starts a new Server instance: replays durable state, binds the
// listener, and spawns the accept loop and, on a replica, the
// replication session.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		conns:      list.New(),
		fatalErrCh: make(chan error),
		haltedCh:   make(chan interface{}),
	}

	var err error
	s.logBackend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	s.log = s.logBackend.GetLogger("server")

	s.store = store.New(s.logBackend)
	s.broker = pubsub.New(s.logBackend)
	s.repl = newReplicationState(s)

	if cfg.IsReplica() {
		s.log.Noticef("mietze starting up as a replica of %v:%v.",
			cfg.Replication.PrimaryHost, cfg.Replication.PrimaryPort)
	} else {
		s.log.Noticef("mietze starting up as a primary, replid %v.", s.repl.replid)
	}

	// Durable state is restored before any client is accepted, the
	// snapshot first, then the append-only log on top of it.
	if err = s.loadSnapshot(); err != nil {
		return nil, err
	}
	if cfg.AppendOnly.Enable {
		if err = s.replayAppendLog(); err != nil {
			return nil, err
		}
		policy, err := aof.SyncPolicyFromString(cfg.AppendOnly.SyncPolicy)
		if err != nil {
			return nil, err
		}
		s.appendLog, err = aof.Open(cfg.AppendOnlyPath(), policy, s.logBackend)
		if err != nil {
			return nil, err
		}
	}

	s.listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return nil, fmt.Errorf("server: failed to bind port %d: %v", cfg.Server.Port, err)
	}
	s.log.Noticef("Listening on %v.", s.listener.Addr())

	s.initMetrics()

	// A fatal failure from a background worker tears the whole server
	// down.
	s.Go(func() {
		select {
		case <-s.HaltCh():
		case err := <-s.fatalErrCh:
			s.log.Errorf("Fatal internal error: %v", err)
			go s.Shutdown()
		}
	})

	s.Go(s.acceptWorker)
	if cfg.IsReplica() {
		s.replica = newReplicaSession(s)
		s.replica.start()
	}
	return s, nil
}

func (s *Server) loadSnapshot() error {
	path := s.cfg.SnapshotPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debugf("No snapshot at %v.", path)
			return nil
		}
		return err
	}
	if err = rdb.Load(data, s.store); err != nil {
		return fmt.Errorf("server: failed to decode snapshot %v: %v", path, err)
	}
	s.log.Noticef("Loaded snapshot %v: %d key(s).", path, s.store.Len())
	return nil
}

func (s *Server) replayAppendLog() error {
	ctx := &execCtx{replay: true}
	return aof.Replay(s.cfg.AppendOnlyPath(), s.logBackend, func(f *resp.Frame) {
		if reply := s.dispatch(ctx, f); reply != nil && reply.IsError() {
			s.log.Warningf("Append log replay: %v", reply.Str)
		}
	})
}

func (s *Server) acceptWorker() {
	// Unblock Accept on shutdown.
	go func() {
		<-s.HaltCh()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.HaltCh():
				return
			default:
			}
			select {
			case s.fatalErrCh <- err:
			default:
			}
			return
		}
		s.onNewConn(conn)
	}
}

func (s *Server) onNewConn(conn net.Conn) {
	c := newIncomingConn(s, conn)

	s.connLock.Lock()
	c.e = s.conns.PushFront(c)
	s.connLock.Unlock()
	connectedClients.Inc()

	c.start()
}

func (s *Server) onClosedConn(c *incomingConn) {
	s.connLock.Lock()
	s.conns.Remove(c.e)
	s.connLock.Unlock()
	connectedClients.Dec()

	c.releaseState()
	s.repl.removeLink(c)
}

// Store returns the server's keyspace, primarily for tests.
func (s *Server) Store() *store.Store {
	return s.store
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown gracefully halts the server.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

// WaitCh returns a channel that is closed once the server has halted.
func (s *Server) WaitCh() <-chan interface{} {
	return s.haltedCh
}

func (s *Server) halt() {
	s.log.Noticef("Starting graceful shutdown.")

	if s.replica != nil {
		s.replica.Halt()
	}

	s.Halt() // accept loop, fatal watcher

	s.connLock.Lock()
	conns := make([]*incomingConn, 0, s.conns.Len())
	for e := s.conns.Front(); e != nil; e = e.Next() {
		conns = append(conns, e.Value.(*incomingConn))
	}
	s.connLock.Unlock()
	for _, c := range conns {
		c.Halt()
	}

	if s.appendLog != nil {
		s.appendLog.Close()
	}

	s.log.Noticef("Shutdown complete.")
	close(s.haltedCh)
}

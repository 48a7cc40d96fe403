// store.go - typed keyspace
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

// Package store implements the keyspace: typed entries keyed by string,
// with lazy expiry, per-type operations, and the blocking-wait
// coordinator for list pops and stream reads.
package store

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/log"
)

// Kind is the type tag of a keyspace entry.
type Kind int

const (
	// None is the kind reported for absent keys.
	None Kind = iota

	// String is a byte string entry.
	String

	// List is an ordered sequence of byte strings.
	List

	// Hash is a field to value mapping.
	Hash

	// Set is an unordered member set.
	Set

	// ZSet is a sorted set ordered by (score, member).
	ZSet

	// Stream is an append-only sequence of (id, fields) entries.
	Stream
)

// String returns the type name reported by the TYPE command.
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case List:
		return "list"
	case Hash:
		return "hash"
	case Set:
		return "set"
	case ZSet:
		return "zset"
	case Stream:
		return "stream"
	default:
		return "none"
	}
}

var (
	// ErrWrongType is the error returned when a command addresses a key
	// holding a different entry type.  The entry is never mutated.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrNotInteger is the error returned when a string entry cannot be
	// interpreted as a 64 bit signed integer, or the result would
	// overflow one.
	ErrNotInteger = errors.New("ERR value is not an integer or out of range")

	// ErrNotFloat is the error returned when a value cannot be
	// interpreted as a float.
	ErrNotFloat = errors.New("ERR value is not a valid float")
)

type entry struct {
	kind      Kind
	expiresAt int64 // absolute milliseconds, 0 = no expiry

	str    string
	list   []string
	hash   map[string]string
	set    map[string]struct{}
	zset   *sortedSet
	stream *streamValue
}

func (e *entry) expired(now int64) bool {
	return e.expiresAt != 0 && now > e.expiresAt
}

// Store is the keyspace.  All operations are serialized under the
// Store's lock; type checks happen under the same exclusion as the
// mutation that follows them.
type Store struct {
	sync.Mutex

	log *logging.Logger

	entries map[string]*entry

	listWaiters   map[string]*list.List
	streamWaiters map[string]*list.List
}

// New constructs an empty Store.
func New(logBackend *log.Backend) *Store {
	return &Store{
		log:           logBackend.GetLogger("store"),
		entries:       make(map[string]*entry),
		listWaiters:   make(map[string]*list.List),
		streamWaiters: make(map[string]*list.List),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// getEntry returns the live entry for key, deleting it first if it has
// lazily expired.  Callers must hold the Store lock.
func (s *Store) getEntry(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(nowMillis()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// getTyped returns the live entry for key iff it holds kind, ErrWrongType
// otherwise.  An absent key returns (nil, nil).  Callers must hold the
// Store lock.
func (s *Store) getTyped(key string, kind Kind) (*entry, error) {
	e := s.getEntry(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// Del removes the given keys, returning the number of keys that existed.
func (s *Store) Del(keys ...string) int64 {
	s.Lock()
	defer s.Unlock()

	var n int64
	for _, k := range keys {
		if s.getEntry(k) != nil {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Exists returns how many of the given keys exist, counting duplicates.
func (s *Store) Exists(keys ...string) int64 {
	s.Lock()
	defer s.Unlock()

	var n int64
	for _, k := range keys {
		if s.getEntry(k) != nil {
			n++
		}
	}
	return n
}

// Type returns the kind of the entry at key.
func (s *Store) Type(key string) Kind {
	s.Lock()
	defer s.Unlock()

	e := s.getEntry(key)
	if e == nil {
		return None
	}
	return e.kind
}

// Keys returns all live keys matching the glob pattern.
func (s *Store) Keys(pattern string) []string {
	s.Lock()
	defer s.Unlock()

	now := nowMillis()
	var keys []string
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		if Match(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// ExpireAt sets the absolute millisecond expiry of key.  It returns
// false if the key does not exist.
func (s *Store) ExpireAt(key string, at int64) bool {
	s.Lock()
	defer s.Unlock()

	e := s.getEntry(key)
	if e == nil {
		return false
	}
	e.expiresAt = at
	return true
}

// Persist clears the expiry of key, returning true if an expiry was
// removed.
func (s *Store) Persist(key string) bool {
	s.Lock()
	defer s.Unlock()

	e := s.getEntry(key)
	if e == nil || e.expiresAt == 0 {
		return false
	}
	e.expiresAt = 0
	return true
}

// PTTL returns the remaining time to live of key in milliseconds, -1 if
// the key has no expiry, and -2 if the key does not exist.
func (s *Store) PTTL(key string) int64 {
	s.Lock()
	defer s.Unlock()

	e := s.getEntry(key)
	switch {
	case e == nil:
		return -2
	case e.expiresAt == 0:
		return -1
	default:
		ttl := e.expiresAt - nowMillis()
		if ttl < 0 {
			ttl = 0
		}
		return ttl
	}
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()

	now := nowMillis()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		n++
	}
	return n
}

// Reset discards every entry, leaving registered waiters in place.
func (s *Store) Reset() {
	s.Lock()
	defer s.Unlock()

	s.entries = make(map[string]*entry)
}

// blocking.go - blocking-wait coordinator
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

package store

import (
	"container/list"
	"time"
)

// Waiters are registered per key in FIFO order and signalled by the
// mutating side through a one-shot buffered channel, so the waker never
// holds a reference into the waiting connection.  The fulfilled flag
// closes the race between a wake and a concurrent timeout: whoever
// takes the Store lock first wins, and a timed-out waiter that lost
// still consumes and returns the delivered result.

type listPopResult struct {
	key   string
	value string
}

type listWaiter struct {
	ch        chan listPopResult
	elems     map[string]*list.Element
	fromTail  bool
	fulfilled bool
}

type streamWaiter struct {
	after     map[string]StreamID
	ch        chan struct{}
	elems     map[string]*list.Element
	fulfilled bool
}

// wakeListWaiter pops one element for the first waiter registered on
// key, if any.  At most one waiter wakes per push.  Callers must hold
// the Store lock; e is the key's live list entry.
func (s *Store) wakeListWaiter(key string, e *entry) {
	q, ok := s.listWaiters[key]
	if !ok || q.Len() == 0 || len(e.list) == 0 {
		return
	}

	w := q.Front().Value.(*listWaiter)
	var value string
	if w.fromTail {
		value = e.list[len(e.list)-1]
		e.list = e.list[:len(e.list)-1]
	} else {
		value = e.list[0]
		e.list = e.list[1:]
	}

	w.fulfilled = true
	s.removeListWaiter(w)
	w.ch <- listPopResult{key: key, value: value}
}

func (s *Store) removeListWaiter(w *listWaiter) {
	for key, elem := range w.elems {
		q := s.listWaiters[key]
		q.Remove(elem)
		if q.Len() == 0 {
			delete(s.listWaiters, key)
		}
	}
	w.elems = nil
}

// BLPop pops from the head (or, with fromTail, the tail) of the first
// non-empty list among keys, blocking until an element arrives, the
// timeout elapses (zero waits forever), or cancel fires.  ok is false
// on timeout or cancellation.
func (s *Store) BLPop(keys []string, timeout time.Duration, cancel <-chan interface{}, fromTail bool) (string, string, bool, error) {
	s.Lock()
	for _, key := range keys {
		e, err := s.getTyped(key, List)
		if err != nil {
			s.Unlock()
			return "", "", false, err
		}
		if e != nil && len(e.list) > 0 {
			var value string
			if fromTail {
				value = e.list[len(e.list)-1]
				e.list = e.list[:len(e.list)-1]
			} else {
				value = e.list[0]
				e.list = e.list[1:]
			}
			s.Unlock()
			return key, value, true, nil
		}
	}

	w := &listWaiter{
		ch:       make(chan listPopResult, 1),
		elems:    make(map[string]*list.Element),
		fromTail: fromTail,
	}
	for _, key := range keys {
		if _, ok := w.elems[key]; ok {
			continue
		}
		q, ok := s.listWaiters[key]
		if !ok {
			q = list.New()
			s.listWaiters[key] = q
		}
		w.elems[key] = q.PushBack(w)
	}
	s.Unlock()

	var timerCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case res := <-w.ch:
		return res.key, res.value, true, nil
	case <-timerCh:
	case <-cancel:
	}

	s.Lock()
	if w.fulfilled {
		s.Unlock()
		res := <-w.ch
		return res.key, res.value, true, nil
	}
	s.removeListWaiter(w)
	s.Unlock()
	return "", "", false, nil
}

// wakeStreamWaiters signals every stream waiter on key whose recorded
// position precedes id.  Callers must hold the Store lock.
func (s *Store) wakeStreamWaiters(key string, id StreamID) {
	q, ok := s.streamWaiters[key]
	if !ok {
		return
	}
	var next *list.Element
	for elem := q.Front(); elem != nil; elem = next {
		next = elem.Next()
		w := elem.Value.(*streamWaiter)
		if !w.after[key].Less(id) {
			continue
		}
		w.fulfilled = true
		s.removeStreamWaiter(w)
		w.ch <- struct{}{}
	}
}

func (s *Store) removeStreamWaiter(w *streamWaiter) {
	for key, elem := range w.elems {
		q := s.streamWaiters[key]
		q.Remove(elem)
		if q.Len() == 0 {
			delete(s.streamWaiters, key)
		}
	}
	w.elems = nil
}

// StreamReadResult is the portion of one stream returned by a stream
// read: the entries strictly after the requested position.
type StreamReadResult struct {
	Key     string
	Entries []StreamEntry
}

// BlockStreamRead returns, for each key, the entries strictly after the
// corresponding position in after.  If no stream has new entries it
// blocks until one does, the timeout elapses (forever selects an
// unbounded wait), or cancel fires.  ok is false on timeout or
// cancellation.
func (s *Store) BlockStreamRead(keys []string, after []StreamID, timeout time.Duration, forever bool, cancel <-chan interface{}) ([]StreamReadResult, bool, error) {
	s.Lock()
	results, err := s.collectStreamsLocked(keys, after)
	if err != nil {
		s.Unlock()
		return nil, false, err
	}
	if results != nil {
		s.Unlock()
		return results, true, nil
	}

	w := &streamWaiter{
		after: make(map[string]StreamID),
		ch:    make(chan struct{}, 1),
		elems: make(map[string]*list.Element),
	}
	for i, key := range keys {
		if _, ok := w.elems[key]; ok {
			continue
		}
		w.after[key] = after[i]
		q, ok := s.streamWaiters[key]
		if !ok {
			q = list.New()
			s.streamWaiters[key] = q
		}
		w.elems[key] = q.PushBack(w)
	}
	s.Unlock()

	var timerCh <-chan time.Time
	if !forever {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerCh = timer.C
	}

	woken := false
	select {
	case <-w.ch:
		woken = true
	case <-timerCh:
	case <-cancel:
	}

	s.Lock()
	if !woken {
		if w.fulfilled {
			<-w.ch
			woken = true
		} else {
			s.removeStreamWaiter(w)
		}
	}
	if !woken {
		s.Unlock()
		return nil, false, nil
	}
	results, err = s.collectStreamsLocked(keys, after)
	s.Unlock()
	if err != nil {
		return nil, false, err
	}
	return results, results != nil, nil
}

func (s *Store) collectStreamsLocked(keys []string, after []StreamID) ([]StreamReadResult, error) {
	var results []StreamReadResult
	for i, key := range keys {
		e, err := s.getTyped(key, Stream)
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		entries := e.stream.after(after[i])
		if len(entries) == 0 {
			continue
		}
		results = append(results, StreamReadResult{Key: key, Entries: entries})
	}
	return results, nil
}

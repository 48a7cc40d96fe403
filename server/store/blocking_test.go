// blocking_test.go - blocking coordinator tests
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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBLPopImmediate(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, err := s.RPush("l2", "x")
	require.NoError(err)

	key, value, ok, err := s.BLPop([]string{"l1", "l2"}, time.Second, nil, false)
	require.NoError(err)
	require.True(ok)
	require.Equal("l2", key)
	require.Equal("x", value)
}

func TestBLPopTimeout(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	start := time.Now()
	_, _, ok, err := s.BLPop([]string{"l"}, 50*time.Millisecond, nil, false)
	require.NoError(err)
	require.False(ok)
	require.GreaterOrEqual(time.Since(start), 50*time.Millisecond)

	// The timed-out waiter must not linger: a later push stays in the
	// list.
	_, err = s.RPush("l", "x")
	require.NoError(err)
	n, err := s.LLen("l")
	require.NoError(err)
	require.Equal(int64(1), n)
}

func TestBLPopWake(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	done := make(chan string, 1)
	go func() {
		_, value, ok, err := s.BLPop([]string{"l"}, 5*time.Second, nil, false)
		if err != nil || !ok {
			done <- ""
			return
		}
		done <- value
	}()

	// Give the waiter time to register before the push.
	time.Sleep(20 * time.Millisecond)
	_, err := s.RPush("l", "hello")
	require.NoError(err)

	select {
	case v := <-done:
		require.Equal("hello", v)
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake")
	}

	n, err := s.LLen("l")
	require.NoError(err)
	require.Zero(n)
}

func TestBLPopFIFO(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	const waiters = 3
	results := make(chan int, waiters)
	var mu sync.Mutex
	order := make([]int, 0, waiters)

	for i := 0; i < waiters; i++ {
		i := i
		go func() {
			_, _, ok, _ := s.BLPop([]string{"l"}, 5*time.Second, nil, false)
			if ok {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}
			results <- i
		}()
		// Serialize registration so arrival order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	// One push wakes exactly one waiter, in FIFO arrival order.
	for i := 0; i < waiters; i++ {
		_, err := s.RPush("l", "v")
		require.NoError(err)
		select {
		case <-results:
		case <-time.After(time.Second):
			t.Fatal("push did not wake a waiter")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal([]int{0, 1, 2}, order)
}

func TestBLPopCancel(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	cancel := make(chan interface{})
	done := make(chan bool, 1)
	go func() {
		_, _, ok, _ := s.BLPop([]string{"l"}, 0, cancel, false)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	close(cancel)
	select {
	case ok := <-done:
		require.False(ok)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not unblock the waiter")
	}
}

func TestBlockStreamReadImmediate(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, err := s.XAdd("st", "1-1", []string{"f", "v"})
	require.NoError(err)

	results, ok, err := s.BlockStreamRead(
		[]string{"st"}, []StreamID{{}}, 0, false, nil)
	require.NoError(err)
	require.True(ok)
	require.Len(results, 1)
	require.Equal("st", results[0].Key)
	require.Len(results[0].Entries, 1)
}

func TestBlockStreamReadWake(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, err := s.XAdd("st", "1-1", []string{"f", "v"})
	require.NoError(err)
	tail, err := s.StreamLastID("st")
	require.NoError(err)

	type result struct {
		results []StreamReadResult
		ok      bool
	}
	// Both blocked readers observe the new entry.
	const readers = 2
	done := make(chan result, readers)
	for i := 0; i < readers; i++ {
		go func() {
			rs, ok, _ := s.BlockStreamRead(
				[]string{"st"}, []StreamID{tail}, 5*time.Second, false, nil)
			done <- result{results: rs, ok: ok}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	id, err := s.XAdd("st", "2-1", []string{"f", "w"})
	require.NoError(err)

	for i := 0; i < readers; i++ {
		select {
		case r := <-done:
			require.True(r.ok)
			require.Len(r.results, 1)
			require.Len(r.results[0].Entries, 1)
			require.Equal(id, r.results[0].Entries[0].ID)
		case <-time.After(time.Second):
			t.Fatal("stream reader did not wake")
		}
	}
}

func TestBlockStreamReadTimeout(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, ok, err := s.BlockStreamRead(
		[]string{"st"}, []StreamID{{}}, 50*time.Millisecond, false, nil)
	require.NoError(err)
	require.False(ok)
}

// store_test.go - keyspace tests
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
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mietze-io/mietze/core/log"
)

func newTestStore(t *testing.T) *Store {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return New(logBackend)
}

func TestStringSetGet(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, ok, err := s.Get("k")
	require.NoError(err)
	require.False(ok)

	s.Set("k", "v", 0)
	v, ok, err := s.Get("k")
	require.NoError(err)
	require.True(ok)
	require.Equal("v", v)

	// SET overwrites any prior type.
	_, err = s.LPush("l", "a")
	require.NoError(err)
	s.Set("l", "v", 0)
	v, ok, err = s.Get("l")
	require.NoError(err)
	require.True(ok)
	require.Equal("v", v)
}

func TestStringExpiry(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	s.Set("k", "v", nowMillis()+40)
	_, ok, err := s.Get("k")
	require.NoError(err)
	require.True(ok)

	time.Sleep(60 * time.Millisecond)
	_, ok, err = s.Get("k")
	require.NoError(err)
	require.False(ok)
	require.Equal(int64(0), s.Exists("k"))
}

func TestTTL(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	require.Equal(int64(-2), s.PTTL("k"))
	s.Set("k", "v", 0)
	require.Equal(int64(-1), s.PTTL("k"))
	require.True(s.ExpireAt("k", nowMillis()+10000))
	ttl := s.PTTL("k")
	require.Greater(ttl, int64(0))
	require.LessOrEqual(ttl, int64(10000))
	require.True(s.Persist("k"))
	require.Equal(int64(-1), s.PTTL("k"))
	require.False(s.Persist("k"))
}

func TestIncrBy(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	v, err := s.IncrBy("c", 1)
	require.NoError(err)
	require.Equal(int64(1), v)

	v, err = s.IncrBy("c", 41)
	require.NoError(err)
	require.Equal(int64(42), v)

	s.Set("c", "nope", 0)
	_, err = s.IncrBy("c", 1)
	require.Equal(ErrNotInteger, err)

	s.Set("c", strconv.FormatInt(1<<62, 10), 0)
	_, err = s.IncrBy("c", 1<<62)
	require.Equal(ErrNotInteger, err)
}

func TestWrongType(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	s.Set("k", "v", 0)
	_, err := s.LPush("k", "a")
	require.Equal(ErrWrongType, err)
	_, err = s.XAdd("k", "*", []string{"f", "v"})
	require.Equal(ErrWrongType, err)
	_, err = s.ZAdd("k", []MemberScore{{Member: "m", Score: 1}})
	require.Equal(ErrWrongType, err)
	_, err = s.HSet("k", []string{"f", "v"})
	require.Equal(ErrWrongType, err)
	_, err = s.SAdd("k", "m")
	require.Equal(ErrWrongType, err)

	// The failed commands must not have mutated the entry.
	v, ok, err := s.Get("k")
	require.NoError(err)
	require.True(ok)
	require.Equal("v", v)
}

func TestListPushPop(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	n, err := s.LPush("l", "a", "b", "c")
	require.NoError(err)
	require.Equal(int64(3), n)

	vals, err := s.LRange("l", 0, -1)
	require.NoError(err)
	require.Equal([]string{"c", "b", "a"}, vals)

	n, err = s.RPush("l", "z")
	require.NoError(err)
	require.Equal(int64(4), n)

	popped, err := s.LPop("l", 2)
	require.NoError(err)
	require.Equal([]string{"c", "b"}, popped)

	popped, err = s.RPop("l", 1)
	require.NoError(err)
	require.Equal([]string{"z"}, popped)

	// Popping a list empty leaves an empty list behind, which is
	// allowed.
	popped, err = s.LPop("l", 10)
	require.NoError(err)
	require.Equal([]string{"a"}, popped)
	popped, err = s.LPop("l", 1)
	require.NoError(err)
	require.Nil(popped)
}

func TestListRangeClamp(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, err := s.RPush("l", "a", "b", "c", "d", "e")
	require.NoError(err)

	vals, err := s.LRange("l", -2, -1)
	require.NoError(err)
	require.Equal([]string{"d", "e"}, vals)

	vals, err = s.LRange("l", 0, 100)
	require.NoError(err)
	require.Len(vals, 5)

	vals, err = s.LRange("l", 3, 1)
	require.NoError(err)
	require.Nil(vals)

	vals, err = s.LRange("missing", 0, -1)
	require.NoError(err)
	require.Nil(vals)
}

func TestListRemSetTrim(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	_, err := s.RPush("l", "a", "b", "a", "c", "a")
	require.NoError(err)

	n, err := s.LRem("l", 2, "a")
	require.NoError(err)
	require.Equal(int64(2), n)
	vals, _ := s.LRange("l", 0, -1)
	require.Equal([]string{"b", "c", "a"}, vals)

	require.NoError(s.LSet("l", -1, "z"))
	require.Equal(ErrIndexRange, s.LSet("l", 9, "z"))
	require.Equal(ErrNoSuchKey, s.LSet("missing", 0, "z"))

	require.NoError(s.LTrim("l", 1, 1))
	vals, _ = s.LRange("l", 0, -1)
	require.Equal([]string{"c"}, vals)
}

func TestHash(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	n, err := s.HSet("h", []string{"a", "1", "b", "2"})
	require.NoError(err)
	require.Equal(int64(2), n)

	n, err = s.HSet("h", []string{"a", "9", "c", "3"})
	require.NoError(err)
	require.Equal(int64(1), n)

	v, ok, err := s.HGet("h", "a")
	require.NoError(err)
	require.True(ok)
	require.Equal("9", v)

	all, err := s.HGetAll("h")
	require.NoError(err)
	require.Len(all, 6)

	n, err = s.HIncrBy("h", "b", 5)
	require.NoError(err)
	require.Equal(int64(7), n)

	fv, err := s.HIncrByFloat("h", "b", 0.5)
	require.NoError(err)
	require.Equal("7.5", fv)

	ok, err = s.HExists("h", "c")
	require.NoError(err)
	require.True(ok)

	n, err = s.HDel("h", "a", "b", "c", "nope")
	require.NoError(err)
	require.Equal(int64(3), n)
	require.Equal(None, s.Type("h"))
}

func TestSet(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	n, err := s.SAdd("s", "a", "b", "a")
	require.NoError(err)
	require.Equal(int64(2), n)

	ok, err := s.SIsMember("s", "a")
	require.NoError(err)
	require.True(ok)

	card, err := s.SCard("s")
	require.NoError(err)
	require.Equal(int64(2), card)

	moved, err := s.SMove("s", "d", "a")
	require.NoError(err)
	require.True(moved)
	ok, err = s.SIsMember("d", "a")
	require.NoError(err)
	require.True(ok)

	popped, err := s.SPop("d", 5)
	require.NoError(err)
	require.Equal([]string{"a"}, popped)
	require.Equal(None, s.Type("d"))

	n, err = s.SRem("s", "b")
	require.NoError(err)
	require.Equal(int64(1), n)
	require.Equal(None, s.Type("s"))
}

func TestZSet(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	added, err := s.ZAdd("z", []MemberScore{
		{Member: "b", Score: 2},
		{Member: "a", Score: 1},
		{Member: "c", Score: 2},
	})
	require.NoError(err)
	require.Equal(int64(3), added)

	// Updating an existing member changes the score, not the
	// cardinality.
	added, err = s.ZAdd("z", []MemberScore{{Member: "a", Score: 5}})
	require.NoError(err)
	require.Equal(int64(0), added)
	card, _ := s.ZCard("z")
	require.Equal(int64(3), card)

	// Ordered by (score asc, member asc).
	got, err := s.ZRange("z", 0, -1)
	require.NoError(err)
	require.Equal([]MemberScore{
		{Member: "b", Score: 2},
		{Member: "c", Score: 2},
		{Member: "a", Score: 5},
	}, got)

	rank, ok, err := s.ZRank("z", "c")
	require.NoError(err)
	require.True(ok)
	require.Equal(int64(1), rank)

	_, ok, err = s.ZRank("z", "missing")
	require.NoError(err)
	require.False(ok)

	score, ok, err := s.ZScore("z", "a")
	require.NoError(err)
	require.True(ok)
	require.Equal(float64(5), score)

	newScore, err := s.ZIncrBy("z", 1.5, "a")
	require.NoError(err)
	require.Equal(6.5, newScore)

	n, err := s.ZRem("z", "a", "b", "c")
	require.NoError(err)
	require.Equal(int64(3), n)
	require.Equal(None, s.Type("z"))
}

func TestZRankLargeSet(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	// Insert in an order unrelated to the rank order: 7919 is coprime
	// with n, so i*7919 mod n walks every slot exactly once.
	const n = 2048
	members := make([]MemberScore, 0, n)
	for i := 0; i < n; i++ {
		slot := (i * 7919) % n
		members = append(members, MemberScore{
			Member: fmt.Sprintf("m%05d", slot),
			Score:  float64(slot),
		})
	}
	added, err := s.ZAdd("z", members)
	require.NoError(err)
	require.Equal(int64(n), added)

	// Rank must match the (score asc, member asc) position for every
	// member, not just the extremes.
	for slot := 0; slot < n; slot += 29 {
		rank, ok, err := s.ZRank("z", fmt.Sprintf("m%05d", slot))
		require.NoError(err)
		require.True(ok)
		require.Equal(int64(slot), rank)
	}
	rank, ok, err := s.ZRank("z", fmt.Sprintf("m%05d", n-1))
	require.NoError(err)
	require.True(ok)
	require.Equal(int64(n-1), rank)
}

func TestZRankAfterUpdatesAndRemovals(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	const n = 512
	for i := 0; i < n; i++ {
		_, err := s.ZAdd("z", []MemberScore{
			{Member: fmt.Sprintf("m%04d", i), Score: float64(i)},
		})
		require.NoError(err)
	}

	// Move every even member past the top, then drop every fourth.
	for i := 0; i < n; i += 2 {
		_, err := s.ZAdd("z", []MemberScore{
			{Member: fmt.Sprintf("m%04d", i), Score: float64(n + i)},
		})
		require.NoError(err)
	}
	for i := 0; i < n; i += 4 {
		_, err := s.ZRem("z", fmt.Sprintf("m%04d", i))
		require.NoError(err)
	}

	// Survivors in order: odd members at their original scores, then
	// members ≡ 2 (mod 4) at the bumped scores.
	want := make([]string, 0, 3*n/4)
	for i := 1; i < n; i += 2 {
		want = append(want, fmt.Sprintf("m%04d", i))
	}
	for i := 2; i < n; i += 4 {
		want = append(want, fmt.Sprintf("m%04d", i))
	}

	got, err := s.ZRange("z", 0, -1)
	require.NoError(err)
	require.Len(got, len(want))
	for i, m := range got {
		require.Equal(want[i], m.Member)
	}
	for i, member := range want {
		rank, ok, err := s.ZRank("z", member)
		require.NoError(err)
		require.True(ok)
		require.Equal(int64(i), rank)
	}
}

func TestKeysAndMatch(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	for _, k := range []string{"one", "two", "three", "t?o"} {
		s.Set(k, "v", 0)
	}
	require.ElementsMatch([]string{"one", "two", "three", "t?o"}, s.Keys("*"))
	require.ElementsMatch([]string{"two", "t?o"}, s.Keys("t?o"))
	require.ElementsMatch([]string{"t?o"}, s.Keys(`t\?o`))
	require.ElementsMatch([]string{"two", "three", "t?o"}, s.Keys("t*"))
	require.ElementsMatch([]string{"one", "two"}, s.Keys("[ot][nw]*"))
}

func TestMatch(t *testing.T) {
	for _, tc := range []struct {
		pattern, str string
		want         bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[a-e]llo", "hcllo", true},
		{"h[a-e]llo", "hzllo", false},
		{"h[^a-e]llo", "hzllo", true},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{`h\*llo`, "h*llo", true},
		{`h\*llo`, "hxllo", false},
		{"a*c", "abbbc", true},
		{"a*c", "ab", false},
		{"", "", true},
		{"", "x", false},
	} {
		require.Equal(t, tc.want, Match(tc.pattern, tc.str), "pattern %q str %q", tc.pattern, tc.str)
	}
}

func TestDelExistsType(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	s.Set("a", "1", 0)
	_, err := s.LPush("b", "x")
	require.NoError(err)

	require.Equal(int64(3), s.Exists("a", "b", "missing", "a"))
	require.Equal(String, s.Type("a"))
	require.Equal(List, s.Type("b"))
	require.Equal(None, s.Type("missing"))

	require.Equal(int64(2), s.Del("a", "b", "missing"))
	require.Equal(int64(0), s.Exists("a", "b"))
}

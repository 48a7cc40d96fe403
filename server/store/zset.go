// zset.go - sorted set entry operations
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

type zmember struct {
	member string
	score  float64
}

// sortedSet keeps the (score, member) ordering in a size-augmented AVL
// tree and the member to score mapping in a side map for O(1) lookup.
type sortedSet struct {
	tree    ztree
	members map[string]*zmember
}

func newSortedSet() *sortedSet {
	return &sortedSet{
		members: make(map[string]*zmember),
	}
}

// add inserts member at score, or updates its score.  It returns true
// when the member is new.
func (z *sortedSet) add(member string, score float64) bool {
	if m, ok := z.members[member]; ok {
		if m.score != score {
			z.tree.remove(m)
			m.score = score
			z.tree.insert(m)
		}
		return false
	}
	m := &zmember{member: member, score: score}
	z.members[member] = m
	z.tree.insert(m)
	return true
}

func (z *sortedSet) remove(member string) bool {
	m, ok := z.members[member]
	if !ok {
		return false
	}
	z.tree.remove(m)
	delete(z.members, member)
	return true
}

// rank returns the zero-based position of member in (score asc, member
// asc) order, resolved in O(log n) by the tree's subtree sizes.
func (z *sortedSet) rank(member string) (int64, bool) {
	m, ok := z.members[member]
	if !ok {
		return 0, false
	}
	r := z.tree.rank(m)
	if r < 0 {
		panic("BUG: zset member map and tree disagree")
	}
	return int64(r), true
}

func (z *sortedSet) byIndex(start, stop int64) []MemberScore {
	start, stop = clampRange(start, stop, int64(len(z.members)))
	if start > stop {
		return nil
	}
	out := make([]MemberScore, 0, stop-start+1)
	var i int64
	z.tree.ascend(func(m *zmember) bool {
		if i > stop {
			return false
		}
		if i >= start {
			out = append(out, MemberScore{Member: m.member, Score: m.score})
		}
		i++
		return true
	})
	return out
}

// MemberScore is a sorted set member together with its score.
type MemberScore struct {
	Member string
	Score  float64
}

// ZAdd inserts or updates the given members, returning the count of
// newly added ones.
func (s *Store) ZAdd(key string, members []MemberScore) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: ZSet, zset: newSortedSet()}
		s.entries[key] = e
	}
	var added int64
	for _, m := range members {
		if e.zset.add(m.Member, m.Score) {
			added++
		}
	}
	return added, nil
}

// ZScore returns the score of member.
func (s *Store) ZScore(key, member string) (float64, bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, false, err
	}
	if e == nil {
		return 0, false, nil
	}
	m, ok := e.zset.members[member]
	if !ok {
		return 0, false, nil
	}
	return m.score, true, nil
}

// ZRank returns the zero-based rank of member in ascending order.
func (s *Store) ZRank(key, member string) (int64, bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, false, err
	}
	if e == nil {
		return 0, false, nil
	}
	rank, ok := e.zset.rank(member)
	return rank, ok, nil
}

// ZRange returns the members in the inclusive index range [start, stop],
// with the same negative-index and clamping rules as LRange.
func (s *Store) ZRange(key string, start, stop int64) ([]MemberScore, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.zset.byIndex(start, stop), nil
}

// ZRem removes the given members, returning how many were removed.  A
// sorted set emptied by the removal is deleted.
func (s *Store) ZRem(key string, members ...string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if e.zset.remove(m) {
			removed++
		}
	}
	if len(e.zset.members) == 0 {
		delete(s.entries, key)
	}
	return removed, nil
}

// ZCard returns the cardinality of the sorted set at key.
func (s *Store) ZCard(key string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.zset.members)), nil
}

// ZIncrBy adjusts the score of member by delta, inserting it at delta
// if absent, and returns the new score.
func (s *Store) ZIncrBy(key string, delta float64, member string) (float64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: ZSet, zset: newSortedSet()}
		s.entries[key] = e
	}
	score := delta
	if m, ok := e.zset.members[member]; ok {
		score += m.score
	}
	e.zset.add(member, score)
	return score, nil
}

// ZScan calls fn for every member of the sorted set at key in (score
// asc, member asc) order, stopping early when fn returns false.
func (s *Store) ZScan(key string, fn func(member string, score float64) bool) error {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, ZSet)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	e.zset.tree.ascend(func(m *zmember) bool {
		return fn(m.member, m.score)
	})
	return nil
}

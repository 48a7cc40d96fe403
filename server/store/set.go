// set.go - set entry operations
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

// SAdd inserts the given members into the set at key, returning the
// count of newly added members.
func (s *Store) SAdd(key string, members ...string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: Set, set: make(map[string]struct{})}
		s.entries[key] = e
	}
	var added int64
	for _, m := range members {
		if _, ok := e.set[m]; !ok {
			e.set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

// SRem removes the given members, returning how many were removed.  A
// set emptied by the removal is deleted.
func (s *Store) SRem(key string, members ...string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	var removed int64
	for _, m := range members {
		if _, ok := e.set[m]; ok {
			delete(e.set, m)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	return removed, nil
}

// SMembers returns every member of the set at key.
func (s *Store) SMembers(key string) ([]string, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

// SCard returns the cardinality of the set at key.
func (s *Store) SCard(key string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

// SPop removes and returns up to count arbitrary members of the set at
// key.
func (s *Store) SPop(key string, count int64) ([]string, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Set)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, count)
	for m := range e.set {
		if int64(len(out)) >= count {
			break
		}
		delete(e.set, m)
		out = append(out, m)
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	return out, nil
}

// SMove moves member from the set at src to the set at dst.  It returns
// false when member is not in src.
func (s *Store) SMove(src, dst, member string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	se, err := s.getTyped(src, Set)
	if err != nil {
		return false, err
	}
	de, err := s.getTyped(dst, Set)
	if err != nil {
		return false, err
	}
	if se == nil {
		return false, nil
	}
	if _, ok := se.set[member]; !ok {
		return false, nil
	}
	delete(se.set, member)
	if len(se.set) == 0 {
		delete(s.entries, src)
	}
	if de == nil {
		de = &entry{kind: Set, set: make(map[string]struct{})}
		s.entries[dst] = de
	}
	de.set[member] = struct{}{}
	return true, nil
}

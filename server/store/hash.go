// hash.go - hash entry operations
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
	"math"
	"strconv"
)

// HSet stores the given field/value pairs in the hash at key, returning
// the number of fields that were newly created.
func (s *Store) HSet(key string, fieldValues []string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: Hash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	var added int64
	for i := 0; i+1 < len(fieldValues); i += 2 {
		if _, ok := e.hash[fieldValues[i]]; !ok {
			added++
		}
		e.hash[fieldValues[i]] = fieldValues[i+1]
	}
	return added, nil
}

// HGet returns the value of field in the hash at key.
func (s *Store) HGet(key, field string) (string, bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return "", false, err
	}
	if e == nil {
		return "", false, nil
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

// HDel removes the given fields, returning how many existed.  A hash
// emptied by the removal is deleted.
func (s *Store) HDel(key string, fields ...string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	var removed int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(s.entries, key)
	}
	return removed, nil
}

// HGetAll returns every field/value pair of the hash at key as a flat
// field, value, ... slice.
func (s *Store) HGetAll(key string) ([]string, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, 2*len(e.hash))
	for f, v := range e.hash {
		out = append(out, f, v)
	}
	return out, nil
}

// HLen returns the number of fields in the hash at key.
func (s *Store) HLen(key string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.hash)), nil
}

// HExists reports whether field exists in the hash at key.
func (s *Store) HExists(key, field string) (bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	_, ok := e.hash[field]
	return ok, nil
}

// HIncrBy adjusts the integer value of field by delta, creating it at 0
// first if absent, and returns the new value.
func (s *Store) HIncrBy(key, field string, delta int64) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: Hash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	cur := e.hash[field]
	if cur == "" {
		cur = "0"
	}
	v, err := strconv.ParseInt(cur, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	if (delta > 0 && v > math.MaxInt64-delta) || (delta < 0 && v < math.MinInt64-delta) {
		return 0, ErrNotInteger
	}
	v += delta
	e.hash[field] = strconv.FormatInt(v, 10)
	return v, nil
}

// HIncrByFloat adjusts the float value of field by delta, creating it
// at 0 first if absent, and returns the new value's string form.
func (s *Store) HIncrByFloat(key, field string, delta float64) (string, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Hash)
	if err != nil {
		return "", err
	}
	if e == nil {
		e = &entry{kind: Hash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	cur := e.hash[field]
	if cur == "" {
		cur = "0"
	}
	v, err := strconv.ParseFloat(cur, 64)
	if err != nil {
		return "", ErrNotFloat
	}
	v += delta
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", ErrNotFloat
	}
	formatted := strconv.FormatFloat(v, 'f', -1, 64)
	e.hash[field] = formatted
	return formatted, nil
}

// string.go - string entry operations
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

// Set stores a string value at key, overwriting any prior entry of any
// type.  expiresAt is an absolute millisecond timestamp, 0 for no
// expiry.
func (s *Store) Set(key, value string, expiresAt int64) {
	s.Lock()
	defer s.Unlock()

	s.entries[key] = &entry{kind: String, str: value, expiresAt: expiresAt}
}

// Get returns the string value at key.  ok is false when the key is
// absent (or expired).
func (s *Store) Get(key string) (string, bool, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, String)
	if err != nil {
		return "", false, err
	}
	if e == nil {
		return "", false, nil
	}
	return e.str, true, nil
}

// IncrBy adjusts the integer value at key by delta, creating the key at
// 0 first if absent.  The new value is returned.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, String)
	if err != nil {
		return 0, err
	}
	if e == nil {
		e = &entry{kind: String, str: "0"}
		s.entries[key] = e
	}

	v, err := strconv.ParseInt(e.str, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	if (delta > 0 && v > math.MaxInt64-delta) || (delta < 0 && v < math.MinInt64-delta) {
		return 0, ErrNotInteger
	}
	v += delta
	e.str = strconv.FormatInt(v, 10)
	return v, nil
}

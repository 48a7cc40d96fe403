// stream.go - stream entry operations
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
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrStreamIDZero is the error for the always-invalid id 0-0.
	ErrStreamIDZero = errors.New("ERR The ID specified in XADD must be greater than 0-0")

	// ErrStreamIDSmall is the error for an id not greater than the
	// stream's top item.
	ErrStreamIDSmall = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")

	// ErrStreamID is the error for a malformed stream id.
	ErrStreamID = errors.New("ERR Invalid stream ID specified as stream command argument")
)

// StreamID is a stream entry id, ordered lexicographically on (Ms, Seq).
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// Less returns true if id orders strictly before other.
func (id StreamID) Less(other StreamID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

// String returns the "<ms>-<seq>" form of the id.
func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// ParseStreamID parses an explicit "<ms>-<seq>" id, or a bare "<ms>"
// with seq defaulting to defaultSeq, as used by XRANGE bounds and XREAD
// positions.
func ParseStreamID(s string, defaultSeq uint64) (StreamID, error) {
	ms, seq, hasSeq, err := splitStreamID(s)
	if err != nil {
		return StreamID{}, err
	}
	if !hasSeq {
		seq = defaultSeq
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

func splitStreamID(s string) (ms, seq uint64, hasSeq bool, err error) {
	msPart, seqPart, found := strings.Cut(s, "-")
	ms, err = strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, false, ErrStreamID
	}
	if !found {
		return ms, 0, false, nil
	}
	seq, err = strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, false, ErrStreamID
	}
	return ms, seq, true, nil
}

// StreamEntry is a single stream entry: an id plus its field/value
// pairs in insertion order.
type StreamEntry struct {
	ID     StreamID
	Fields []string // flat field, value, field, value ...
}

type streamValue struct {
	entries []StreamEntry
	lastID  StreamID
}

// after returns the entries with id strictly greater than pos.
func (sv *streamValue) after(pos StreamID) []StreamEntry {
	for i, e := range sv.entries {
		if pos.Less(e.ID) {
			out := make([]StreamEntry, len(sv.entries)-i)
			copy(out, sv.entries[i:])
			return out
		}
	}
	return nil
}

// XAdd appends an entry to the stream at key.  idSpec is "*",
// "<ms>-*", or an explicit "<ms>-<seq>"; the assigned id is returned.
func (s *Store) XAdd(key, idSpec string, fields []string) (StreamID, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return StreamID{}, err
	}
	if e == nil {
		e = &entry{kind: Stream, stream: new(streamValue)}
		s.entries[key] = e
	}
	sv := e.stream

	id, err := sv.resolveID(idSpec)
	if err != nil {
		return StreamID{}, err
	}

	sv.entries = append(sv.entries, StreamEntry{ID: id, Fields: fields})
	sv.lastID = id
	s.wakeStreamWaiters(key, id)
	return id, nil
}

func (sv *streamValue) resolveID(idSpec string) (StreamID, error) {
	var id StreamID
	if idSpec == "*" {
		// Fully automatic ids must still advance when the wall clock
		// runs behind the stream's top item.
		id = sv.nextID(uint64(nowMillis()))
		if len(sv.entries) > 0 && !sv.lastID.Less(id) {
			id = StreamID{Ms: sv.lastID.Ms, Seq: sv.lastID.Seq + 1}
		}
	} else {
		msPart, seqPart, found := strings.Cut(idSpec, "-")
		ms, err := strconv.ParseUint(msPart, 10, 64)
		if err != nil {
			return StreamID{}, ErrStreamID
		}
		if !found {
			return StreamID{}, ErrStreamID
		}
		if seqPart == "*" {
			id = sv.nextID(ms)
		} else {
			seq, err := strconv.ParseUint(seqPart, 10, 64)
			if err != nil {
				return StreamID{}, ErrStreamID
			}
			id = StreamID{Ms: ms, Seq: seq}
		}
	}

	// Every form funnels through the same validity checks.
	if id.Ms == 0 && id.Seq == 0 {
		return StreamID{}, ErrStreamIDZero
	}
	if len(sv.entries) > 0 && !sv.lastID.Less(id) {
		return StreamID{}, ErrStreamIDSmall
	}
	return id, nil
}

// nextID computes the auto sequence for ms: one past the last sequence
// at that millisecond, otherwise 0, except that the very first entry of
// an empty stream at ms 0 is 0-1.
func (sv *streamValue) nextID(ms uint64) StreamID {
	if len(sv.entries) == 0 {
		if ms == 0 {
			return StreamID{Ms: 0, Seq: 1}
		}
		return StreamID{Ms: ms, Seq: 0}
	}
	if sv.lastID.Ms == ms {
		return StreamID{Ms: ms, Seq: sv.lastID.Seq + 1}
	}
	return StreamID{Ms: ms, Seq: 0}
}

// XRange returns the entries with start <= id <= end.
func (s *Store) XRange(key string, start, end StreamID) ([]StreamEntry, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	var out []StreamEntry
	for _, se := range e.stream.entries {
		if se.ID.Less(start) {
			continue
		}
		if end.Less(se.ID) {
			break
		}
		out = append(out, se)
	}
	return out, nil
}

// XLen returns the number of entries in the stream at key.
func (s *Store) XLen(key string) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.stream.entries)), nil
}

// XDel removes the entries with the given ids, returning how many were
// found and removed.
func (s *Store) XDel(key string, ids []StreamID) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	sv := e.stream
	drop := make(map[StreamID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var removed int64
	keep := sv.entries[:0]
	for _, se := range sv.entries {
		if drop[se.ID] {
			removed++
			continue
		}
		keep = append(keep, se)
	}
	sv.entries = keep
	return removed, nil
}

// XTrim evicts entries from the head until at most maxLen remain,
// returning the number evicted.
func (s *Store) XTrim(key string, maxLen int64) (int64, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	sv := e.stream
	if int64(len(sv.entries)) <= maxLen {
		return 0, nil
	}
	evict := int64(len(sv.entries)) - maxLen
	sv.entries = append([]StreamEntry(nil), sv.entries[evict:]...)
	return evict, nil
}

// StreamLastID returns the id of the last entry added to the stream at
// key, the zero id when the stream is absent.  A stream emptied by XDel
// or XTrim still reports the id of its last added entry.
func (s *Store) StreamLastID(key string) (StreamID, error) {
	s.Lock()
	defer s.Unlock()

	e, err := s.getTyped(key, Stream)
	if err != nil {
		return StreamID{}, err
	}
	if e == nil {
		return StreamID{}, nil
	}
	return e.stream.lastID, nil
}

// MaxStreamSeq is the largest sequence number, used when resolving a
// bare millisecond as a range end.
const MaxStreamSeq = uint64(math.MaxUint64)

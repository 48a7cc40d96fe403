// rdb.go - snapshot file decoding and the minimal snapshot encoder
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

// Package rdb decodes snapshot files into keyspace entries and encodes
// the minimal empty snapshot sent during full resynchronization.  The
// trailing CRC64 checksum is not verified.
package rdb

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/mietze-io/mietze/server/store"
)

// Snapshot file opcodes.
const (
	opAux          = 0xFA
	opResizeDB     = 0xFB
	opExpireTimeMS = 0xFC
	opExpireTime   = 0xFD
	opSelectDB     = 0xFE
	opEOF          = 0xFF
)

// Snapshot value types.
const (
	typeString = 0
	typeList   = 1
	typeSet    = 2
	typeZSet   = 3
	typeHash   = 4
)

// EmptySnapshot returns the minimal valid snapshot: magic and version,
// the EOF opcode, and a zeroed checksum trailer.
func EmptySnapshot() []byte {
	b := []byte("REDIS0011")
	b = append(b, opEOF)
	return append(b, 0, 0, 0, 0, 0, 0, 0, 0)
}

type reader struct {
	data []byte
	pos  int
}

// Pos returns the current decode offset, for error reporting.
func (r *reader) Pos() int {
	return r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.New("rdb: unexpected end of snapshot")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errors.New("rdb: unexpected end of snapshot")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// readLength decodes a length-encoded integer.  special is true for the
// 11-prefixed special string encodings, with the low 6 bits returned as
// the encoding id.
func (r *reader) readLength() (length uint64, special bool, err error) {
	first, err := r.readByte()
	if err != nil {
		return 0, false, err
	}
	switch first >> 6 {
	case 0:
		return uint64(first & 0x3F), false, nil
	case 1:
		next, err := r.readByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(first&0x3F)<<8 | uint64(next), false, nil
	case 2:
		b, err := r.readBytes(4)
		if err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint32(b)), false, nil
	default:
		return uint64(first & 0x3F), true, nil
	}
}

// readString decodes a length-prefixed string, including the special
// 8/16/32 bit integer encodings.
func (r *reader) readString() (string, error) {
	length, special, err := r.readLength()
	if err != nil {
		return "", err
	}
	if !special {
		b, err := r.readBytes(int(length))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	switch length {
	case 0: // 8 bit integer
		b, err := r.readByte()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int8(b)), 10), nil
	case 1: // 16 bit integer
		b, err := r.readBytes(2)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10), nil
	case 2: // 32 bit integer
		b, err := r.readBytes(4)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10), nil
	default:
		return "", errors.Errorf("rdb: unsupported string encoding %d", length)
	}
}

// Load decodes a snapshot and applies its records to s.  Keys already
// expired at load time are dropped.
func Load(data []byte, s *store.Store) error {
	if len(data) < 9 || string(data[:5]) != "REDIS" {
		return errors.New("rdb: bad magic")
	}
	if _, err := strconv.Atoi(string(data[5:9])); err != nil {
		return errors.Errorf("rdb: bad version %q", string(data[5:9]))
	}

	r := &reader{data: data, pos: 9}
	var expiresAt int64
	for {
		opcode, err := r.readByte()
		if err != nil {
			return err
		}

		switch opcode {
		case opEOF:
			return nil
		case opAux:
			if _, err = r.readString(); err == nil {
				_, err = r.readString()
			}
			if err != nil {
				return errors.Wrap(err, "rdb: metadata entry")
			}
		case opSelectDB:
			if _, _, err = r.readLength(); err != nil {
				return errors.Wrap(err, "rdb: database selector")
			}
		case opResizeDB:
			if _, _, err = r.readLength(); err == nil {
				_, _, err = r.readLength()
			}
			if err != nil {
				return errors.Wrap(err, "rdb: resize hint")
			}
		case opExpireTimeMS:
			b, err := r.readBytes(8)
			if err != nil {
				return errors.Wrap(err, "rdb: millisecond expiry")
			}
			expiresAt = int64(binary.LittleEndian.Uint64(b))
		case opExpireTime:
			b, err := r.readBytes(4)
			if err != nil {
				return errors.Wrap(err, "rdb: second expiry")
			}
			expiresAt = int64(binary.LittleEndian.Uint32(b)) * 1000
		default:
			if err = loadValue(r, s, opcode, expiresAt); err != nil {
				return err
			}
			expiresAt = 0
		}
	}
}

func loadValue(r *reader, s *store.Store, valueType byte, expiresAt int64) error {
	key, err := r.readString()
	if err != nil {
		return errors.Wrap(err, "rdb: key")
	}

	// An already-expired key still has to be decoded to keep the
	// stream in sync, it is just not applied.
	dead := expiresAt != 0 && expiresAt <= time.Now().UnixMilli()

	switch valueType {
	case typeString:
		value, err := r.readString()
		if err != nil {
			return errors.Wrapf(err, "rdb: string value of %q", key)
		}
		if !dead {
			s.Set(key, value, expiresAt)
		}
	case typeList:
		values, err := readStringSeq(r, 1)
		if err != nil {
			return errors.Wrapf(err, "rdb: list value of %q", key)
		}
		if !dead {
			if _, err := s.RPush(key, values...); err != nil {
				return err
			}
		}
	case typeSet:
		members, err := readStringSeq(r, 1)
		if err != nil {
			return errors.Wrapf(err, "rdb: set value of %q", key)
		}
		if !dead {
			if _, err := s.SAdd(key, members...); err != nil {
				return err
			}
		}
	case typeHash:
		fieldValues, err := readStringSeq(r, 2)
		if err != nil {
			return errors.Wrapf(err, "rdb: hash value of %q", key)
		}
		if !dead {
			if _, err := s.HSet(key, fieldValues); err != nil {
				return err
			}
		}
	case typeZSet:
		pairs, err := readStringSeq(r, 2)
		if err != nil {
			return errors.Wrapf(err, "rdb: sorted set value of %q", key)
		}
		members := make([]store.MemberScore, 0, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			score, err := strconv.ParseFloat(pairs[i+1], 64)
			if err != nil {
				return errors.Wrapf(err, "rdb: score of %q member %q", key, pairs[i])
			}
			members = append(members, store.MemberScore{Member: pairs[i], Score: score})
		}
		if !dead {
			if _, err := s.ZAdd(key, members); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("rdb: unsupported value type %d at offset %d", valueType, r.Pos())
	}

	if !dead && expiresAt != 0 {
		s.ExpireAt(key, expiresAt)
	}
	return nil
}

// readStringSeq reads a length followed by length*stride strings.
func readStringSeq(r *reader, stride int) ([]string, error) {
	length, special, err := r.readLength()
	if err != nil {
		return nil, err
	}
	if special {
		return nil, errors.New("rdb: special encoding where a length was expected")
	}
	out := make([]string, 0, int(length)*stride)
	for i := 0; i < int(length)*stride; i++ {
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

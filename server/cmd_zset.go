// cmd_zset.go - sorted set and geo commands
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

package server

import (
	"strconv"
	"strings"

	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/geo"
	"github.com/mietze-io/mietze/server/store"
)

var errNotFloat = resp.Err(store.ErrNotFloat.Error())

// formatScore renders a score the way score replies are expected:
// shortest representation that round-trips.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func cmdZAdd(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if len(args[1:])%2 != 0 {
		return resp.Err("ERR syntax error")
	}
	members := make([]store.MemberScore, 0, len(args[1:])/2)
	for i := 1; i+1 < len(args); i += 2 {
		score, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return errNotFloat
		}
		members = append(members, store.MemberScore{Member: args[i+1], Score: score})
	}
	added, err := s.store.ZAdd(args[0], members)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(added)
}

func cmdZRange(s *Server, ctx *execCtx, args []string) *resp.Frame {
	start, ok := argInt(args[1])
	if !ok {
		return errNotInteger
	}
	stop, ok := argInt(args[2])
	if !ok {
		return errNotInteger
	}
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(args[3], "WITHSCORES") {
			return resp.Err("ERR syntax error")
		}
		withScores = true
	}

	members, err := s.store.ZRange(args[0], start, stop)
	if err != nil {
		return resp.Err(err.Error())
	}
	items := make([]*resp.Frame, 0, len(members)*2)
	for _, m := range members {
		items = append(items, resp.BulkString(m.Member))
		if withScores {
			items = append(items, resp.BulkString(formatScore(m.Score)))
		}
	}
	return resp.Array(items...)
}

func cmdZRank(s *Server, ctx *execCtx, args []string) *resp.Frame {
	rank, ok, err := s.store.ZRank(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Integer(rank)
}

func cmdZScore(s *Server, ctx *execCtx, args []string) *resp.Frame {
	score, ok, err := s.store.ZScore(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(formatScore(score))
}

func cmdZRem(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.ZRem(args[0], args[1:]...)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdZCard(s *Server, ctx *execCtx, args []string) *resp.Frame {
	n, err := s.store.ZCard(args[0])
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(n)
}

func cmdZIncrBy(s *Server, ctx *execCtx, args []string) *resp.Frame {
	delta, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return errNotFloat
	}
	score, serr := s.store.ZIncrBy(args[0], delta, args[2])
	if serr != nil {
		return resp.Err(serr.Error())
	}
	return resp.BulkString(formatScore(score))
}

// Geo commands ride on the sorted set type with the 52 bit interleaved
// geohash as the score.

func cmdGeoAdd(s *Server, ctx *execCtx, args []string) *resp.Frame {
	if len(args[1:])%3 != 0 {
		return resp.Err("ERR syntax error")
	}
	members := make([]store.MemberScore, 0, len(args[1:])/3)
	for i := 1; i+2 < len(args); i += 3 {
		lon, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return errNotFloat
		}
		lat, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return errNotFloat
		}
		score, err := geo.Encode(lon, lat)
		if err != nil {
			return resp.Err(err.Error())
		}
		members = append(members, store.MemberScore{Member: args[i+2], Score: float64(score)})
	}
	added, err := s.store.ZAdd(args[0], members)
	if err != nil {
		return resp.Err(err.Error())
	}
	return resp.Integer(added)
}

func cmdGeoPos(s *Server, ctx *execCtx, args []string) *resp.Frame {
	items := make([]*resp.Frame, 0, len(args)-1)
	for _, member := range args[1:] {
		score, ok, err := s.store.ZScore(args[0], member)
		if err != nil {
			return resp.Err(err.Error())
		}
		if !ok {
			items = append(items, resp.NullArray())
			continue
		}
		lon, lat := geo.Decode(uint64(score))
		items = append(items, resp.BulkArray(
			strconv.FormatFloat(lon, 'f', 17, 64),
			strconv.FormatFloat(lat, 'f', 17, 64)))
	}
	return resp.Array(items...)
}

func cmdGeoDist(s *Server, ctx *execCtx, args []string) *resp.Frame {
	unit := "m"
	if len(args) == 4 {
		unit = args[3]
	}
	toMeters, err := geo.UnitToMeters(unit)
	if err != nil {
		return resp.Err(err.Error())
	}

	s1, ok1, err := s.store.ZScore(args[0], args[1])
	if err != nil {
		return resp.Err(err.Error())
	}
	s2, ok2, err := s.store.ZScore(args[0], args[2])
	if err != nil {
		return resp.Err(err.Error())
	}
	if !ok1 || !ok2 {
		return resp.NullBulk()
	}

	lon1, lat1 := geo.Decode(uint64(s1))
	lon2, lat2 := geo.Decode(uint64(s2))
	d := geo.Dist(lon1, lat1, lon2, lat2) / toMeters
	return resp.BulkString(strconv.FormatFloat(d, 'f', 4, 64))
}

func cmdGeoSearch(s *Server, ctx *execCtx, args []string) *resp.Frame {
	// GEOSEARCH key FROMLONLAT lon lat BYRADIUS radius unit
	if !strings.EqualFold(args[1], "FROMLONLAT") || !strings.EqualFold(args[4], "BYRADIUS") {
		return resp.Err("ERR syntax error")
	}
	lon, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return errNotFloat
	}
	lat, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return errNotFloat
	}
	radius, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return errNotFloat
	}
	toMeters, err := geo.UnitToMeters(args[6])
	if err != nil {
		return resp.Err(err.Error())
	}
	radiusMeters := radius * toMeters

	// Members come back in sorted set score order.
	var items []*resp.Frame
	serr := s.store.ZScan(args[0], func(member string, score float64) bool {
		mlon, mlat := geo.Decode(uint64(score))
		if geo.Dist(lon, lat, mlon, mlat) <= radiusMeters {
			items = append(items, resp.BulkString(member))
		}
		return true
	})
	if serr != nil {
		return resp.Err(serr.Error())
	}
	return resp.Array(items...)
}

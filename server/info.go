// info.go - INFO sections
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
	"fmt"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mietze-io/mietze/core/resp"
)

func cmdInfo(s *Server, ctx *execCtx, args []string) *resp.Frame {
	section := "all"
	if len(args) == 1 {
		section = strings.ToLower(args[0])
	}

	var b strings.Builder
	if section == "all" || section == "server" {
		s.infoServer(&b)
	}
	if section == "all" || section == "replication" {
		s.infoReplication(&b)
	}
	if section == "all" || section == "memory" || section == "cpu" {
		s.infoProcess(&b, section)
	}
	return resp.BulkString(b.String())
}

func (s *Server) infoServer(b *strings.Builder) {
	b.WriteString("# Server\r\n")
	fmt.Fprintf(b, "mietze_version:%s\r\n", versioninfo.Short())
	fmt.Fprintf(b, "process_id:%d\r\n", os.Getpid())
	fmt.Fprintf(b, "tcp_port:%d\r\n", s.cfg.Server.Port)
}

func (s *Server) infoReplication(b *strings.Builder) {
	b.WriteString("# Replication\r\n")
	if s.cfg.IsReplica() {
		var offset uint64
		if s.replica != nil {
			offset = s.replica.offset()
		}
		b.WriteString("role:slave\r\n")
		fmt.Fprintf(b, "master_host:%s\r\n", s.cfg.Replication.PrimaryHost)
		fmt.Fprintf(b, "master_port:%d\r\n", s.cfg.Replication.PrimaryPort)
		fmt.Fprintf(b, "master_repl_offset:%d\r\n", offset)
		return
	}

	s.repl.Lock()
	defer s.repl.Unlock()
	b.WriteString("role:master\r\n")
	fmt.Fprintf(b, "connected_slaves:%d\r\n", s.repl.links.Len())
	fmt.Fprintf(b, "master_replid:%s\r\n", s.repl.replid)
	fmt.Fprintf(b, "master_repl_offset:%d\r\n", s.repl.offset)
}

// infoProcess reports process resource usage.  Failures to sample are
// silently elided rather than failing the command.
func (s *Server) infoProcess(b *strings.Builder, section string) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	if section == "all" || section == "memory" {
		if mem, err := proc.MemoryInfo(); err == nil {
			b.WriteString("# Memory\r\n")
			fmt.Fprintf(b, "used_memory_rss:%d\r\n", mem.RSS)
		}
	}
	if section == "all" || section == "cpu" {
		if times, err := proc.Times(); err == nil {
			b.WriteString("# CPU\r\n")
			fmt.Fprintf(b, "used_cpu_sys:%.6f\r\n", times.System)
			fmt.Fprintf(b, "used_cpu_user:%.6f\r\n", times.User)
		}
	}
}

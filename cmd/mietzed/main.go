// main.go - mietze daemon
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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"

	"github.com/mietze-io/mietze/server"
	"github.com/mietze-io/mietze/server/config"
)

func main() {
	cfgFile := flag.String("f", "", "Path to the config file")
	port := flag.Int("port", 0, "Listen port")
	replicaOf := flag.String("replicaof", "", "Run as a replica of \"<host> <port>\"")
	dir := flag.String("dir", "", "Directory for the snapshot file")
	dbFilename := flag.String("dbfilename", "", "Snapshot filename")
	appendOnly := flag.Bool("appendonly", false, "Enable the append-only log")
	appendFilename := flag.String("appendfilename", "", "Append-only log filename")
	aofDir := flag.String("aof-dir", "", "Append-only log directory (falls back to --dir)")
	appendFsync := flag.String("appendfsync", "", "Append-only sync policy: always, everysec, no")
	logFile := flag.String("log-file", "", "Log file (empty for stdout)")
	logLevel := flag.String("log-level", "", "Log level: ERROR, WARNING, NOTICE, INFO, DEBUG")
	metricsAddr := flag.String("metrics", "", "Instrumentation HTTP listen address")
	version := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("mietze %v\n", versioninfo.Short())
		return
	}

	cfg, err := buildConfig(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command line options override the config file.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dir != "" {
		cfg.Server.DataDir = *dir
		if *aofDir == "" {
			cfg.AppendOnly.Directory = *dir
		}
	}
	if *dbFilename != "" {
		cfg.Server.DBFilename = *dbFilename
	}
	if *appendOnly {
		cfg.AppendOnly.Enable = true
	}
	if *appendFilename != "" {
		cfg.AppendOnly.Filename = *appendFilename
	}
	if *aofDir != "" {
		cfg.AppendOnly.Directory = *aofDir
	}
	if *appendFsync != "" {
		cfg.AppendOnly.SyncPolicy = *appendFsync
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddress = *metricsAddr
	}
	if *replicaOf != "" {
		repl, err := config.ParseReplicaOf(*replicaOf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg.Replication = repl
	}
	if err = cfg.FixupAndValidate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	svr, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	// Halt cleanly on SIGINT/SIGTERM.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		svr.Shutdown()
	}()

	<-svr.WaitCh()
}

func buildConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg := new(config.Config)
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

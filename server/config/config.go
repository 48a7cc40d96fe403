// config.go - server configuration
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

// Package config provides the server configuration, populated from a
// TOML file, command line options, or both, with the command line
// taking precedence.
package config

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultPort       = 6379
	defaultDataDir    = "."
	defaultDBFilename = "dump.rdb"
	defaultAOFName    = "mietze.aof"
	defaultLogLevel   = "NOTICE"
)

// Server is the network and snapshot configuration.
type Server struct {
	// Port is the TCP listen port.
	Port int

	// DataDir is the directory holding the snapshot file.
	DataDir string

	// DBFilename is the snapshot filename within DataDir.
	DBFilename string

	// MetricsAddress, when set, is the HTTP listen address for the
	// instrumentation endpoint.
	MetricsAddress string
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Port == 0 {
		sCfg.Port = defaultPort
	}
	if sCfg.DataDir == "" {
		sCfg.DataDir = defaultDataDir
	}
	if sCfg.DBFilename == "" {
		sCfg.DBFilename = defaultDBFilename
	}
}

func (sCfg *Server) validate() error {
	if sCfg.Port < 1 || sCfg.Port > 65535 {
		return fmt.Errorf("config: Server: Port '%v' is invalid", sCfg.Port)
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable suppresses all log output.
	Disable bool

	// File is the log file, empty for stdout.
	File string

	// Level is one of ERROR, WARNING, NOTICE, INFO, DEBUG.
	Level string
}

func (lCfg *Logging) validate() error {
	switch strings.ToUpper(lCfg.Level) {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG", "":
		return nil
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
}

// Replication configures the replica role.  A nil section means the
// server runs as a primary.
type Replication struct {
	// PrimaryHost is the primary's host.
	PrimaryHost string

	// PrimaryPort is the primary's port.
	PrimaryPort int
}

func (rCfg *Replication) validate() error {
	if rCfg.PrimaryHost == "" {
		return fmt.Errorf("config: Replication: PrimaryHost is missing")
	}
	if rCfg.PrimaryPort < 1 || rCfg.PrimaryPort > 65535 {
		return fmt.Errorf("config: Replication: PrimaryPort '%v' is invalid", rCfg.PrimaryPort)
	}
	return nil
}

// AppendOnly configures the append-only durability log.
type AppendOnly struct {
	// Enable turns the log on.
	Enable bool

	// Filename is the log filename within Directory.
	Filename string

	// Directory is the log directory, falling back to the snapshot
	// DataDir when empty.
	Directory string

	// SyncPolicy is one of "always", "everysec", "no".
	SyncPolicy string
}

func (aCfg *AppendOnly) applyDefaults(sCfg *Server) {
	if aCfg.Filename == "" {
		aCfg.Filename = defaultAOFName
	}
	if aCfg.Directory == "" {
		aCfg.Directory = sCfg.DataDir
	}
	if aCfg.SyncPolicy == "" {
		aCfg.SyncPolicy = "everysec"
	}
}

func (aCfg *AppendOnly) validate() error {
	switch aCfg.SyncPolicy {
	case "always", "everysec", "no":
		return nil
	default:
		return fmt.Errorf("config: AppendOnly: SyncPolicy '%v' is invalid", aCfg.SyncPolicy)
	}
}

// Config is the top level configuration.
type Config struct {
	Server      *Server
	Logging     *Logging
	Replication *Replication
	AppendOnly  *AppendOnly
}

// SnapshotPath returns the full path of the snapshot file.
func (cfg *Config) SnapshotPath() string {
	return filepath.Join(cfg.Server.DataDir, cfg.Server.DBFilename)
}

// AppendOnlyPath returns the full path of the append-only log.
func (cfg *Config) AppendOnlyPath() string {
	return filepath.Join(cfg.AppendOnly.Directory, cfg.AppendOnly.Filename)
}

// IsReplica returns true when the server is configured as a replica.
func (cfg *Config) IsReplica() bool {
	return cfg.Replication != nil
}

// FixupAndValidate applies defaults to missing sections and validates
// the configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		cfg.Server = new(Server)
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{Level: defaultLogLevel}
	}
	if cfg.AppendOnly == nil {
		cfg.AppendOnly = new(AppendOnly)
	}

	cfg.Server.applyDefaults()
	cfg.AppendOnly.applyDefaults(cfg.Server)

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.AppendOnly.validate(); err != nil {
		return err
	}
	if cfg.Replication != nil {
		if err := cfg.Replication.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load parses and validates the provided TOML buffer.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file.
func LoadFile(f string) (*Config, error) {
	b, err := ioutil.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// ParseReplicaOf parses the `"<host> <port>"` form of the replicaof
// command line option.
func ParseReplicaOf(s string) (*Replication, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("config: replicaof expects \"<host> <port>\", got '%v'", s)
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("config: replicaof port '%v' is invalid", fields[1])
	}
	return &Replication{PrimaryHost: fields[0], PrimaryPort: port}, nil
}

package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/atomicfile"

	bzos "github.com/bazaarnet/bazaar/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

const configHeader = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# Durations are written as Go duration strings, e.g. "60s" or "1m30s".
# Every key can be overridden by a BAZAAR_ prefixed environment variable,
# e.g. BAZAAR_SERVER_LISTEN_ADDRESS.

`

// tomlConfig mirrors Config in the shape written to config.toml.
type tomlConfig struct {
	Moniker   string `toml:"moniker"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Server struct {
		ListenAddress   string `toml:"listen_address"`
		Workers         int    `toml:"workers"`
		MaxPeers        int    `toml:"max_peers"`
		MaxDatagramSize int    `toml:"max_datagram_size"`
	} `toml:"server"`

	Auction struct {
		Window string `toml:"window"`
	} `toml:"auction"`

	Instrumentation struct {
		Prometheus bool   `toml:"prometheus"`
		Namespace  string `toml:"namespace"`
	} `toml:"instrumentation"`

	Inspect struct {
		ListenAddress      string   `toml:"listen_address"`
		CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
		MaxOpenConnections int      `toml:"max_open_connections"`
	} `toml:"inspect"`
}

func newTOMLConfig(cfg *Config) tomlConfig {
	var tc tomlConfig
	tc.Moniker = cfg.Moniker
	tc.LogLevel = cfg.LogLevel
	tc.LogFormat = cfg.LogFormat

	tc.Server.ListenAddress = cfg.Server.ListenAddress
	tc.Server.Workers = cfg.Server.Workers
	tc.Server.MaxPeers = cfg.Server.MaxPeers
	tc.Server.MaxDatagramSize = cfg.Server.MaxDatagramSize

	tc.Auction.Window = cfg.Auction.Window.String()

	tc.Instrumentation.Prometheus = cfg.Instrumentation.Prometheus
	tc.Instrumentation.Namespace = cfg.Instrumentation.Namespace

	tc.Inspect.ListenAddress = cfg.Inspect.ListenAddress
	tc.Inspect.CORSAllowedOrigins = cfg.Inspect.CORSAllowedOrigins
	tc.Inspect.MaxOpenConnections = cfg.Inspect.MaxOpenConnections
	if tc.Inspect.CORSAllowedOrigins == nil {
		tc.Inspect.CORSAllowedOrigins = []string{}
	}
	return tc
}

/****** these are for production settings ***********/

// EnsureRoot creates the root and config directories if they don't exist.
func EnsureRoot(rootDir string) error {
	if err := bzos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		return err
	}
	return bzos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm)
}

// WriteConfigFile renders config as TOML and atomically replaces
// rootDir/config/config.toml with it.
// This function is called by cmd/bazaar/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	bz, err := Render(config)
	if err != nil {
		return err
	}
	return atomicfile.WriteData(filepath.Join(rootDir, defaultConfigFilePath), bz, 0644)
}

// WriteDefaultConfigFileIfNone writes the default configuration unless a
// config file is already present, and reports whether it wrote one.
func WriteDefaultConfigFileIfNone(rootDir string) (bool, error) {
	if bzos.FileExists(filepath.Join(rootDir, defaultConfigFilePath)) {
		return false, nil
	}
	if err := WriteConfigFile(rootDir, DefaultConfig()); err != nil {
		return false, err
	}
	return true, nil
}

// Render returns the TOML representation of config.
func Render(config *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)
	if err := toml.NewEncoder(&buf).Encode(newTOMLConfig(config)); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

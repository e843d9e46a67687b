package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/bazaarnet/bazaar/libs/log"
)

// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultBazaarDir  = ".bazaar"
	defaultConfigDir  = "config"
	defaultConfigName = "config.toml"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigName)
)

// Config defines the top level configuration for a bazaar server
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Server          *ServerConfig          `mapstructure:"server"`
	Auction         *AuctionConfig         `mapstructure:"auction"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
	Inspect         *InspectConfig         `mapstructure:"inspect"`
}

// DefaultConfig returns a default configuration for a bazaar server
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Server:          DefaultServerConfig(),
		Auction:         DefaultAuctionConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
		Inspect:         DefaultInspectConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Server:          TestServerConfig(),
		Auction:         TestAuctionConfig(),
		Instrumentation: TestInstrumentationConfig(),
		Inspect:         TestInspectConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Server.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [server] section: %w", err)
	}
	if err := cfg.Auction.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [auction] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	if err := cfg.Inspect.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [inspect] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a bazaar server
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this server
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`
}

// DefaultBaseConfig returns a default base configuration for a bazaar server
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:   defaultMoniker,
		LogLevel:  log.LogLevelInfo,
		LogFormat: log.LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing a bazaar server
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.Moniker = "test"
	cfg.LogLevel = log.LogLevelDebug
	return cfg
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case log.LogFormatPlain, log.LogFormatText, log.LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain', 'text' or 'json')")
	}
	switch cfg.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}

//-----------------------------------------------------------------------------
// ServerConfig

// ServerConfig defines the configuration of the UDP rendezvous server
type ServerConfig struct {
	// UDP address the server receives datagrams on
	ListenAddress string `mapstructure:"listen_address"`

	// Number of goroutines decoding and handling datagrams.
	// 0 - one per CPU.
	Workers int `mapstructure:"workers"`

	// Maximum number of registered peers.
	// 0 - unlimited.
	MaxPeers int `mapstructure:"max_peers"`

	// Size of the receive buffer. Longer datagrams are truncated and
	// dropped as malformed.
	MaxDatagramSize int `mapstructure:"max_datagram_size"`
}

// DefaultServerConfig returns a default configuration for the server
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress:   "0.0.0.0:5000",
		Workers:         4,
		MaxPeers:        100,
		MaxDatagramSize: 1024,
	}
}

// TestServerConfig returns a configuration for testing the server
func TestServerConfig() *ServerConfig {
	cfg := DefaultServerConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Workers = 2
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ServerConfig) ValidateBasic() error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen_address: %w", err)
	}
	if cfg.Workers < 0 {
		return errors.New("workers can't be negative")
	}
	if cfg.MaxPeers < 0 {
		return errors.New("max_peers can't be negative")
	}
	if cfg.MaxDatagramSize <= 0 {
		return errors.New("max_datagram_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// AuctionConfig

// AuctionConfig defines how searches are auctioned
type AuctionConfig struct {
	// How long an auction collects offers, and how long a seller has to
	// answer a NEGOTIATE.
	Window time.Duration `mapstructure:"window"`
}

// DefaultAuctionConfig returns a default configuration for auctions
func DefaultAuctionConfig() *AuctionConfig {
	return &AuctionConfig{
		Window: 60 * time.Second,
	}
}

// TestAuctionConfig returns a configuration for testing auctions
func TestAuctionConfig() *AuctionConfig {
	return &AuctionConfig{
		Window: 200 * time.Millisecond,
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *AuctionConfig) ValidateBasic() error {
	if cfg.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on the
	// inspect listen address.
	Prometheus bool `mapstructure:"prometheus"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus: false,
		Namespace:  "bazaar",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.Namespace == "" {
		return errors.New("namespace can't be empty when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InspectConfig

// InspectConfig defines the read-only HTTP endpoint exposing server status,
// metrics and a live feed of processed events.
type InspectConfig struct {
	// TCP address for the inspect server to listen on.
	// Empty disables the endpoint.
	ListenAddress string `mapstructure:"listen_address"`

	// A list of origins a cross-domain request can be executed from.
	// If the special '*' value is present in the list, all origins will be allowed.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Maximum number of simultaneous connections (including WebSocket).
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`
}

// DefaultInspectConfig returns a default configuration for the inspect
// server
func DefaultInspectConfig() *InspectConfig {
	return &InspectConfig{
		ListenAddress:      "",
		CORSAllowedOrigins: []string{},
		MaxOpenConnections: 100,
	}
}

// TestInspectConfig returns a configuration for testing the inspect server
func TestInspectConfig() *InspectConfig {
	cfg := DefaultInspectConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InspectConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	if cfg.ListenAddress == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen_address: %w", err)
	}
	return nil
}

// Enabled reports whether the inspect server should run.
func (cfg *InspectConfig) Enabled() bool {
	return cfg.ListenAddress != ""
}

// IsCorsEnabled returns true if cross-origin resource sharing is enabled.
func (cfg *InspectConfig) IsCorsEnabled() bool {
	return len(cfg.CORSAllowedOrigins) != 0
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}

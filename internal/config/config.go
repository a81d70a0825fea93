package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LixenWraith/logger"
	"github.com/LixenWraith/tinytoml"

	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/transport"
)

const (
	defaultConfigBase = "/usr/local/etc"

	// DefaultRegistryFile is shared by all binaries so they agree on the sites
	DefaultRegistryFile = "/usr/local/etc/mailpostbridge/sites.yaml"
)

type TransportConfig struct {
	RegistryFile string        `toml:"registry_file"`
	ExitPolicy   string        `toml:"exit_policy"`
	Encoding     string        `toml:"encoding"`
	Timeout      time.Duration `toml:"timeout"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	RelayAddr    string        `toml:"relay_addr"`
}

type ServerConfig struct {
	InternalAddr    string        `toml:"internal_addr"`
	SinkAddr        string        `toml:"sink_addr"`
	Timeout         time.Duration `toml:"timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	MaxMessageBytes int           `toml:"max_message_bytes"`
}

type Config struct {
	Transport TransportConfig `toml:"transport"`
	Server    ServerConfig    `toml:"server"`
	Logging   logger.Config   `toml:"logging"`
}

var defaultConfig = Config{
	Transport: TransportConfig{
		RegistryFile: DefaultRegistryFile,
		ExitPolicy:   string(transport.Compat),
		Encoding:     string(poster.Multipart),
		Timeout:      30 * time.Second,
		DialTimeout:  5 * time.Second,
		RelayAddr:    "",
	},
	Server: ServerConfig{
		InternalAddr:    "localhost:2526",
		SinkAddr:        "localhost:8846",
		Timeout:         2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxMessageBytes: 50 << 20,
	},
	Logging: logger.Config{
		Level:          logger.LevelInfo,
		Name:           "",
		Directory:      "/var/log",
		BufferSize:     1000,
		MaxSizeMB:      100,
		MaxTotalSizeMB: 1000,
		MinDiskFreeMB:  500,
	},
}

// Default returns the built-in configuration for the named application.
func Default(name string) Config {
	config := defaultConfig
	config.Logging.Name = name
	config.Logging.Directory = filepath.Join(config.Logging.Directory, name)
	return config
}

// DefaultPath is where Load looks for the named application's config file.
func DefaultPath(name string) string {
	return filepath.Join(defaultConfigBase, name, name+".toml")
}

// Load reads the config for name from its default location, creating the
// directory if needed. The bool reports whether a file was found.
func Load(name string) (*Config, bool, error) {
	defaultConfigPath := DefaultPath(name)

	if err := os.MkdirAll(filepath.Dir(defaultConfigPath), 0755); err != nil {
		return nil, false, fmt.Errorf("failed to create config directory: %w", err)
	}

	return LoadFile(defaultConfigPath, name)
}

// LoadFile reads path on top of the defaults for name. A missing file is not
// an error; the defaults are validated and returned.
func LoadFile(path, name string) (*Config, bool, error) {
	config := Default(name)

	// If config file exists, Load and merge with defaults
	configExists := false
	if _, err := os.Stat(path); err == nil {
		configExists = true
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, configExists, fmt.Errorf("failed to read config file: %w", err)
		}

		// Unmarshal into config, overwriting only specified values
		if err := tinytoml.Unmarshal(data, &config); err != nil {
			return nil, configExists, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, configExists, err
	}

	return &config, configExists, nil
}

func validateConfig(config *Config) error {
	if config.Transport.RegistryFile == "" {
		return fmt.Errorf("missing transport registry_file")
	}

	if !transport.ExitPolicy(config.Transport.ExitPolicy).Valid() {
		return fmt.Errorf("invalid transport exit_policy %q (expected %s|%s)",
			config.Transport.ExitPolicy, transport.Compat, transport.Strict)
	}

	if !poster.Encoding(config.Transport.Encoding).Valid() {
		return fmt.Errorf("invalid transport encoding %q (expected %s|%s)",
			config.Transport.Encoding, poster.Multipart, poster.URLEncoded)
	}

	if config.Transport.Timeout <= 0 || config.Transport.DialTimeout <= 0 {
		return fmt.Errorf("invalid transport timeouts")
	}

	if config.Server.InternalAddr == "" || config.Server.SinkAddr == "" ||
		config.Server.Timeout <= 0 || config.Server.ShutdownTimeout <= 0 ||
		config.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid server configuration")
	}

	if config.Logging.Directory == "" || config.Logging.BufferSize <= 0 {
		return fmt.Errorf("invalid logging configuration")
	}

	return nil
}

// Save writes config to the default location for name.
func Save(config *Config, name string) error {
	return SaveFile(config, DefaultPath(name))
}

func SaveFile(config *Config, path string) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	data, err := tinytoml.Marshal(*config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// PosterConfig derives the outbound HTTP settings.
func (c *Config) PosterConfig() poster.Config {
	pc := poster.DefaultConfig()
	pc.Timeout = c.Transport.Timeout
	pc.DialTimeout = c.Transport.DialTimeout
	pc.Encoding = poster.Encoding(c.Transport.Encoding)
	return pc
}

// Package config loads settings from defaults, an optional YAML file, an
// optional dotenv file and SECURECMD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"securecmd/pkg/protocol"
	"securecmd/pkg/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SECURECMD_"

// minBufferSize fits the ciphertext of every fixed protocol message.
const minBufferSize = 32

const (
	ExecShell  = "shell"
	ExecDirect = "direct"
)

// Config holds settings shared by the server, the client and the file tool.
// Both peers must agree on Framing and Integrity.
type Config struct {
	Address    string `yaml:"address"`
	Framing    string `yaml:"framing"`
	Integrity  bool   `yaml:"integrity"`
	BufferSize int    `yaml:"buffer_size"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	File   FileConfig   `yaml:"file"`
}

type ServerConfig struct {
	// IdentityFile persists the fingerprint. Empty means a fresh one per connection.
	IdentityFile   string `yaml:"identity_file"`
	MetricsAddress string `yaml:"metrics_address"`
	ExecMode       string `yaml:"exec_mode"`
	Login          string `yaml:"login"`
	Password       string `yaml:"password"`
}

type ClientConfig struct {
	Proxy          string `yaml:"proxy"`
	KnownHostsFile string `yaml:"known_hosts_file"`
}

type FileConfig struct {
	KeyFile string `yaml:"key_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Address:    "127.0.0.1:7878",
		Framing:    protocol.FramingLengthPrefixed,
		Integrity:  true,
		BufferSize: protocol.DefaultBufferSize,
		LogLevel:   "info",
		LogFormat:  "text",
		Server: ServerConfig{
			ExecMode: ExecShell,
			Login:    protocol.DefaultCredentials.Login,
			Password: protocol.DefaultCredentials.Password,
		},
	}
}

// Load builds the configuration. path and envFile are optional.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		var err error
		dotenv, err = godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}

	if err := cfg.applyEnv(func(key string) (string, bool) {
		if val, ok := os.LookupEnv(key); ok {
			return val, true
		}
		val, ok := dotenv[key]
		return val, ok
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from lookup. Process environment wins over the
// dotenv file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(name string, dst *string) {
		if val, ok := lookup(EnvPrefix + name); ok {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		val, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s must be a boolean (got: %q)", EnvPrefix, name, val))
			return
		}
		*dst = b
	}
	integer := func(name string, dst *int) {
		val, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s must be an integer (got: %q)", EnvPrefix, name, val))
			return
		}
		*dst = n
	}

	str("ADDRESS", &c.Address)
	str("FRAMING", &c.Framing)
	boolean("INTEGRITY", &c.Integrity)
	integer("BUFFER_SIZE", &c.BufferSize)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("IDENTITY_FILE", &c.Server.IdentityFile)
	str("METRICS_ADDRESS", &c.Server.MetricsAddress)
	str("EXEC_MODE", &c.Server.ExecMode)
	str("LOGIN", &c.Server.Login)
	str("PASSWORD", &c.Server.Password)
	str("PROXY", &c.Client.Proxy)
	str("KNOWN_HOSTS_FILE", &c.Client.KnownHostsFile)
	str("KEY_FILE", &c.File.KeyFile)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if err := transport.ValidateAddress(c.Address); err != nil {
		errs = append(errs, fmt.Sprintf("address: %v", err))
	}
	if _, err := protocol.NewFramer(c.Framing, c.BufferSize); err != nil {
		errs = append(errs, fmt.Sprintf("framing: %v", err))
	}
	if c.Framing == protocol.FramingSingleRead && c.BufferSize < minBufferSize {
		errs = append(errs, fmt.Sprintf("buffer_size must be at least %d bytes for single-read framing (got: %d)", minBufferSize, c.BufferSize))
	}
	switch c.Server.ExecMode {
	case ExecShell, ExecDirect:
	default:
		errs = append(errs, fmt.Sprintf("server.exec_mode must be %q or %q (got: %q)", ExecShell, ExecDirect, c.Server.ExecMode))
	}
	if c.Server.Login == "" || strings.Contains(c.Server.Login, "\n") {
		errs = append(errs, "server.login must be non-empty and contain no newline")
	}
	if c.Server.MetricsAddress != "" {
		if err := transport.ValidateAddress(c.Server.MetricsAddress); err != nil {
			errs = append(errs, fmt.Sprintf("server.metrics_address: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Options returns the channel options for the configured framing.
func (c *Config) Options() (protocol.Options, error) {
	framer, err := protocol.NewFramer(c.Framing, c.BufferSize)
	if err != nil {
		return protocol.Options{}, err
	}
	return protocol.Options{Framer: framer, Integrity: c.Integrity}, nil
}

// Credentials is the pair the server accepts.
func (c *Config) Credentials() protocol.Credentials {
	return protocol.Credentials{Login: c.Server.Login, Password: c.Server.Password}
}

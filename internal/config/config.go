// Package config handles relayd configuration file parsing and validation.
//
// The configuration is a YAML file with an http section (control plane bind
// address) and a kcp section (data plane bind port plus the tunable ARQ
// parameters from spec §6).
//
// Example:
//
//	http:
//	  address: "0.0.0.0"
//	  port: 8080
//	  use_https: false
//	kcp:
//	  port: 7777
//	  dual_mode: false
//	  no_delay: true
//	  interval: 10
//	  timeout: 10000
//	  recv_buffer_size: 7340032
//	  send_buffer_size: 7340032
//	  fast_resend: 2
//	  receive_window_size: 4096
//	  send_window_size: 4096
//	  max_retransmit: 40
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for relayd.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	KCP  KCPConfig  `yaml:"kcp"`
}

// HTTPConfig holds the control plane's bind settings.
type HTTPConfig struct {
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	UseHTTPS bool   `yaml:"use_https"`
}

// KCPConfig holds the data plane's bind port and ARQ tuning, named after
// spec §6's Kcp_* keys.
type KCPConfig struct {
	Port              int  `yaml:"port"`
	DualMode          bool `yaml:"dual_mode"`
	NoDelay           bool `yaml:"no_delay"`
	Interval          int  `yaml:"interval"`
	TimeoutMs         int  `yaml:"timeout"`
	RecvBufferSize    int  `yaml:"recv_buffer_size"`
	SendBufferSize    int  `yaml:"send_buffer_size"`
	FastResend        int  `yaml:"fast_resend"`
	ReceiveWindowSize int  `yaml:"receive_window_size"`
	SendWindowSize    int  `yaml:"send_window_size"`
	MaxRetransmit     int  `yaml:"max_retransmit"`
}

// Load reads and parses a YAML config file, applying defaults but not
// validating — callers should call Validate explicitly so load failures
// and validation failures are distinguishable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Parse parses a YAML config from raw bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset (zero) numeric fields and the HTTP address with
// spec §6's recommended defaults. Boolean fields (use_https, dual_mode,
// no_delay) are left as parsed, so an omitted no_delay stays false.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.KCP.Port == 0 {
		c.KCP.Port = 7777
	}
	if c.KCP.Interval == 0 {
		c.KCP.Interval = 10
	}
	if c.KCP.TimeoutMs == 0 {
		c.KCP.TimeoutMs = 10000
	}
	if c.KCP.RecvBufferSize == 0 {
		c.KCP.RecvBufferSize = 7 * 1024 * 1024
	}
	if c.KCP.SendBufferSize == 0 {
		c.KCP.SendBufferSize = 7 * 1024 * 1024
	}
	if c.KCP.FastResend == 0 {
		c.KCP.FastResend = 2
	}
	if c.KCP.ReceiveWindowSize == 0 {
		c.KCP.ReceiveWindowSize = 4096
	}
	if c.KCP.SendWindowSize == 0 {
		c.KCP.SendWindowSize = 4096
	}
	if c.KCP.MaxRetransmit == 0 {
		// The library's default dead-link count is commonly cited as 20;
		// spec §6 recommends double that.
		c.KCP.MaxRetransmit = 40
	}
}

// Validate checks the configuration for errors. Call ApplyDefaults first
// if you want defaults considered instead of flagged as missing.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if c.KCP.Port <= 0 || c.KCP.Port > 65535 {
		return fmt.Errorf("config: kcp.port must be between 1 and 65535, got %d", c.KCP.Port)
	}
	if c.KCP.Interval <= 0 {
		return fmt.Errorf("config: kcp.interval must be positive, got %d", c.KCP.Interval)
	}
	if c.KCP.TimeoutMs <= 0 {
		return fmt.Errorf("config: kcp.timeout must be positive, got %d", c.KCP.TimeoutMs)
	}
	if c.KCP.ReceiveWindowSize <= 0 || c.KCP.SendWindowSize <= 0 {
		return fmt.Errorf("config: kcp window sizes must be positive")
	}
	return nil
}

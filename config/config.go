// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the bridge connection configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Defaults. The port matches the listener the host-side script opens.
const (
	DefaultAddress           = "localhost"
	DefaultPort              = 2306
	DefaultTransport         = "tcp"
	DefaultTimeoutSeconds    = 5.0
	DefaultConnectRetries    = 3
	DefaultRetryBackoffMS    = 100
	DefaultCompressThreshold = 64 * 1024
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config describes where the host listens and how calls are bounded.
type Config struct {
	// Address is the host name or IP the host-side listener is bound to.
	Address string `yaml:"address" json:"address"`

	// Port selects the endpoint.
	Port int `yaml:"port" json:"port"`

	// Transport is one of the registered transport names (tcp, http, grpc).
	Transport string `yaml:"transport" json:"transport"`

	// TimeoutSeconds is the per-call deadline for host round trips.
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds"`

	// ConnectRetries is the total number of connection attempts made
	// before a call fails with a host-unavailable error.
	ConnectRetries int `yaml:"connect_retries" json:"connect_retries"`

	// RetryBackoffMS is the wait before the second attempt; it doubles
	// for each further attempt.
	RetryBackoffMS int `yaml:"retry_backoff_ms" json:"retry_backoff_ms"`

	// CompressThreshold is the payload size in bytes above which the
	// tcp transport compresses frames. Zero disables compression.
	CompressThreshold int `yaml:"compress_threshold" json:"compress_threshold"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Address:           DefaultAddress,
		Port:              DefaultPort,
		Transport:         DefaultTransport,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		ConnectRetries:    DefaultConnectRetries,
		RetryBackoffMS:    DefaultRetryBackoffMS,
		CompressThreshold: DefaultCompressThreshold,
	}
}

// LoadFile reads a .yaml/.yml or .json/.jsonc file, merges it onto
// Default and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &cfg)
	default:
		return Config{}, fmt.Errorf("%w: unsupported config extension %q", ErrInvalid, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges. The transport name is checked against the
// registry when the bridge is built, not here.
func (c Config) Validate() error {
	switch {
	case c.Address == "":
		return fmt.Errorf("%w: address is empty", ErrInvalid)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	case c.Transport == "":
		return fmt.Errorf("%w: transport is empty", ErrInvalid)
	case c.TimeoutSeconds <= 0:
		return fmt.Errorf("%w: timeout_seconds must be positive, got %v", ErrInvalid, c.TimeoutSeconds)
	case c.ConnectRetries < 1:
		return fmt.Errorf("%w: connect_retries must be at least 1, got %d", ErrInvalid, c.ConnectRetries)
	case c.RetryBackoffMS < 0:
		return fmt.Errorf("%w: retry_backoff_ms is negative", ErrInvalid)
	case c.CompressThreshold < 0:
		return fmt.Errorf("%w: compress_threshold is negative", ErrInvalid)
	}
	return nil
}

// Addr is the dialable host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Timeout is TimeoutSeconds as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// RetryBackoff is RetryBackoffMS as a duration.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// Package common provides shared utilities for the service binaries:
// configuration loading, logger setup, and key loading or generation.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rtaiello/let-them-drop/crypto"
	"github.com/rtaiello/let-them-drop/protocol"
)

// Config holds the settings of a service binary. Command-line flags override
// values loaded from the YAML file.
type Config struct {
	// HTTPAddr is the listen address of the HTTP server.
	HTTPAddr string `yaml:"http_addr"`

	// Mode selects the protocol variant: "eagle" (synchronous rounds) or
	// "owl" (asynchronous windows).
	Mode string `yaml:"mode"`

	// EnablePprof enables the pprof debugging API.
	EnablePprof bool `yaml:"enable_pprof"`

	// LogJSON switches log output from text to JSON.
	LogJSON bool `yaml:"log_json"`

	// SigningKey is a hex-encoded Ed25519 private key. Generated if empty.
	SigningKey string `yaml:"signing_key"`

	// TickInterval is how often the aggregator checks phase deadlines.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Params are the protocol parameters shared by the whole deployment.
	Params *protocol.Params `yaml:"params"`
}

// DefaultConfig returns a config suitable for local experimentation.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		Mode:         "eagle",
		TickInterval: time.Second,
		Params:       protocol.DefaultParams(),
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for consistency.
func (c *Config) Validate() error {
	if c.Mode != "eagle" && c.Mode != "owl" {
		return fmt.Errorf("mode must be eagle or owl, got %q", c.Mode)
	}
	if c.Params == nil {
		return fmt.Errorf("params are required")
	}
	return c.Params.Validate()
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewLogger creates a structured logger writing to stderr.
func NewLogger(logJSON bool) *slog.Logger {
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

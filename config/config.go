package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures runtime configuration for the bounty ledger daemon.
type Config struct {
	ListenAddress    string `toml:"ListenAddress"`
	DataDir          string `toml:"DataDir"`
	VerifierURL      string `toml:"VerifierURL"`
	Environment      string `toml:"Environment"`
	OwnerAddress     string `toml:"OwnerAddress"`
	ScriptSourcePath string `toml:"ScriptSourcePath"`
	AdminJWTSecret   string `toml:"AdminJWTSecret"`
	AdminJWTIssuer   string `toml:"AdminJWTIssuer"`
	SecretsSlot      uint8  `toml:"SecretsSlot"`
	SecretsVersion   uint64 `toml:"SecretsVersion"`
}

// Load reads the configuration from the given path and validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./data",
		VerifierURL:   "http://localhost:8090",
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if secret := strings.TrimSpace(os.Getenv("GITBOUNTY_ADMIN_JWT_SECRET")); secret != "" {
		cfg.AdminJWTSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(c.VerifierURL) == "" {
		return fmt.Errorf("config: VerifierURL required")
	}
	if _, err := c.Owner(); err != nil {
		return err
	}
	return nil
}

// Owner decodes the configured owner address.
func (c *Config) Owner() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.OwnerAddress), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("config: OwnerAddress required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return addr, fmt.Errorf("config: invalid OwnerAddress %q", c.OwnerAddress)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// ScriptSource loads the verification script blob, falling back to the
// given default when no path is configured.
func (c *Config) ScriptSource(fallback string) (string, error) {
	path := strings.TrimSpace(c.ScriptSourcePath)
	if path == "" {
		return fallback, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read script source: %w", err)
	}
	return string(raw), nil
}

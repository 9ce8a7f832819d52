package verifierd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for the verifier service.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	GitHub        GitHubConfig `yaml:"github"`
}

// GitHubConfig points the verifier at a GitHub-compatible GraphQL API.
type GitHubConfig struct {
	Endpoint string   `yaml:"endpoint"`
	TokenEnv string   `yaml:"tokenEnv"`
	Timeout  Duration `yaml:"timeout"`
}

// Duration decodes human-readable YAML values ("15s", "2m") as well as raw
// nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfig reads the YAML config at path and applies defaults. A missing
// file yields the defaults so local runs need no config at all.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8090",
		GitHub: GitHubConfig{
			Endpoint: "https://api.github.com/graphql",
			TokenEnv: "GITHUB_TOKEN",
			Timeout:  Duration(15 * time.Second),
		},
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if listen := strings.TrimSpace(os.Getenv("VERIFIERD_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
	if endpoint := strings.TrimSpace(os.Getenv("VERIFIERD_GITHUB_ENDPOINT")); endpoint != "" {
		cfg.GitHub.Endpoint = endpoint
	}
	if cfg.GitHub.Timeout <= 0 {
		cfg.GitHub.Timeout = Duration(15 * time.Second)
	}
	return cfg, nil
}

// FallbackToken resolves the environment-provided credential used when a
// job carries none.
func (c Config) FallbackToken() string {
	if c.GitHub.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.GitHub.TokenEnv))
}

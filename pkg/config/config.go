// Package config loads chatkeep settings from defaults, a TOML file, .env and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	BackendJSONFile = "jsonfile"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"

	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	// OnCorruptReset moves a malformed store aside and starts fresh.
	OnCorruptReset = "reset"
	// OnCorruptStrict fails the load instead.
	OnCorruptStrict = "strict"
)

// Config is the complete chatkeep configuration.
type Config struct {
	Debug      bool       `toml:"debug"`
	Server     Server     `toml:"server"`
	Storage    Storage    `toml:"storage"`
	Completion Completion `toml:"completion"`
}

// Server configures the HTTP surface.
type Server struct {
	// Address to listen on (e.g., ":8080")
	Listen string `toml:"listen"`

	// Comma separated origins for CORS; "*" allows all, empty disables CORS.
	CORSOrigins string `toml:"cors_origins"`
}

// Storage selects and configures the conversation store.
type Storage struct {
	Backend string `toml:"backend"`

	// Path is the JSON file or SQLite database. Empty uses the backend default.
	Path string `toml:"path"`

	OnCorrupt string `toml:"on_corrupt"`

	// Watch caches the conversation in memory and reloads it when the file
	// changes on disk. Only meaningful for the jsonfile backend.
	Watch bool `toml:"watch"`
}

// Completion configures the chat-completion provider.
type Completion struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

// Duration decodes TOML strings such as "90s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration: Groq's hosted llama model and a
// conversation.json in the working directory.
func Default() *Config {
	return &Config{
		Server: Server{
			Listen:      ":8080",
			CORSOrigins: "*",
		},
		Storage: Storage{
			Backend:   BackendJSONFile,
			OnCorrupt: OnCorruptReset,
		},
		Completion: Completion{
			Provider:  ProviderGroq,
			Model:     DefaultModel(ProviderGroq),
			MaxTokens: 1024,
			// LLM requests can be slow, especially with long histories
			Timeout: Duration{5 * time.Minute},
		},
	}
}

// DefaultModel returns the model used when none is configured for provider.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOllama:
		return "llama3.2"
	default:
		return "llama-3.3-70b-versatile"
	}
}

// DefaultPath returns the path of the config file under the user's home.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatkeep", "config.toml"), nil
}

// Load builds a Config. When path is empty the default location is used and
// may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
	}

	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("CHATKEEP_LISTEN", &c.Server.Listen)
	str("CHATKEEP_CORS_ORIGINS", &c.Server.CORSOrigins)
	str("CHATKEEP_BACKEND", &c.Storage.Backend)
	str("CHATKEEP_STORE_PATH", &c.Storage.Path)
	str("CHATKEEP_ON_CORRUPT", &c.Storage.OnCorrupt)
	str("CHATKEEP_BASE_URL", &c.Completion.BaseURL)

	if v, ok := lookup("CHATKEEP_PROVIDER"); ok && v != "" && v != c.Completion.Provider {
		// A provider switch without an explicit model takes that provider's default.
		if c.Completion.Model == DefaultModel(c.Completion.Provider) {
			c.Completion.Model = DefaultModel(v)
		}
		c.Completion.Provider = v
	}
	str("CHATKEEP_MODEL", &c.Completion.Model)

	if v, ok := lookup("CHATKEEP_DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CHATKEEP_DEBUG %q: %w", v, err)
		}
		c.Debug = debug
	}

	if c.Completion.APIKey == "" {
		str(APIKeyEnv(c.Completion.Provider), &c.Completion.APIKey)
	}
	str("CHATKEEP_API_KEY", &c.Completion.APIKey)

	return nil
}

// APIKeyEnv returns the conventional environment variable holding the API
// key for provider, or "" for providers that need none.
func APIKeyEnv(provider string) string {
	switch provider {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// NeedsAPIKey reports whether the configured provider is hosted and has no key.
func (c *Config) NeedsAPIKey() bool {
	return APIKeyEnv(c.Completion.Provider) != "" && c.Completion.APIKey == ""
}

// Validate rejects unknown enum values and nonsensical limits.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSONFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Storage.OnCorrupt {
	case OnCorruptReset, OnCorruptStrict:
	default:
		return fmt.Errorf("unknown on_corrupt policy %q", c.Storage.OnCorrupt)
	}

	switch c.Completion.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}

	if c.Completion.Model == "" {
		return errors.New("completion model is required")
	}
	if c.Completion.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Completion.Timeout)
	}

	return nil
}

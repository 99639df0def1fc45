// Package cliconfig holds the flags shared by chatkeep commands and turns them
// into an opened store and exchange.
package cliconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/chatkeep/pkg/completion"
	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/exchange"
	"github.com/papercomputeco/chatkeep/pkg/logger"
	"github.com/papercomputeco/chatkeep/pkg/storage"
	"github.com/papercomputeco/chatkeep/pkg/storage/backend"
)

// Flags are registered on every command that touches the conversation.
type Flags struct {
	ConfigPath string
	Debug      bool
	Backend    string
	StorePath  string
	Provider   string
	Model      string
	BaseURL    string
}

// Register adds the shared flags to cmd.
func (f *Flags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "Path to config file (default ~/.chatkeep/config.toml)")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&f.Backend, "backend", "", "Storage backend: jsonfile, sqlite or memory")
	cmd.Flags().StringVarP(&f.StorePath, "store", "s", "", "Path to the conversation store")
	cmd.Flags().StringVar(&f.Provider, "provider", "", "Completion provider: groq, openai, anthropic or ollama")
	cmd.Flags().StringVarP(&f.Model, "model", "m", "", "Completion model")
	cmd.Flags().StringVar(&f.BaseURL, "base-url", "", "Override the provider API base URL")
}

// Load reads the config file and environment, then applies any flags that
// were set explicitly.
func (f *Flags) Load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("debug") {
		cfg.Debug = f.Debug
	}
	if changed("backend") {
		cfg.Storage.Backend = f.Backend
	}
	if changed("store") {
		cfg.Storage.Path = f.StorePath
	}
	if changed("provider") && f.Provider != cfg.Completion.Provider {
		if !changed("model") && cfg.Completion.Model == config.DefaultModel(cfg.Completion.Provider) {
			cfg.Completion.Model = config.DefaultModel(f.Provider)
		}
		// A key belongs to its provider.
		cfg.Completion.APIKey = os.Getenv(config.APIKeyEnv(f.Provider))
		if key := os.Getenv("CHATKEEP_API_KEY"); key != "" {
			cfg.Completion.APIKey = key
		}
		cfg.Completion.Provider = f.Provider
	}
	if changed("model") {
		cfg.Completion.Model = f.Model
	}
	if changed("base-url") {
		cfg.Completion.BaseURL = f.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger returns a stderr logger for long-running commands. One-shot
// commands only log when debugging.
func Logger(cfg *config.Config, longRunning bool) *zap.Logger {
	if !longRunning && !cfg.Debug {
		return zap.NewNop()
	}
	return logger.NewLogger(cfg.Debug)
}

// EnsureAPIKey prompts for a missing API key when in is a terminal.
func EnsureAPIKey(cfg *config.Config, in io.Reader, out io.Writer) error {
	if !cfg.NeedsAPIKey() {
		return nil
	}

	env := config.APIKeyEnv(cfg.Completion.Provider)
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return fmt.Errorf("no API key for %s: set %s or completion.api_key", cfg.Completion.Provider, env)
	}

	_, _ = fmt.Fprintf(out, "Enter your %s API key: ", env)
	key, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}

	cfg.Completion.APIKey = strings.TrimSpace(string(key))
	if cfg.Completion.APIKey == "" {
		return fmt.Errorf("no API key for %s", cfg.Completion.Provider)
	}
	return nil
}

// OpenStore opens the configured store.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	store, err := backend.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("could not open conversation store: %w", err)
	}
	return store, nil
}

// NewExchange joins store with the configured completion service.
func NewExchange(cfg *config.Config, store storage.Store, log *zap.Logger) (*exchange.Exchange, error) {
	completer, err := completion.New(cfg.Completion, log)
	if err != nil {
		return nil, err
	}
	return exchange.New(store, completer, log), nil
}

// OpenExchange opens the store and completion service and joins them.
// The returned store must be closed by the caller.
func OpenExchange(ctx context.Context, cfg *config.Config, log *zap.Logger) (*exchange.Exchange, storage.Store, error) {
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	ex, err := NewExchange(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return ex, store, nil
}

// Package completion is the boundary to chat-completion APIs. A Service turns
// an ordered turn history into the next assistant reply; every failure comes
// back as a *Fault so callers can map it to a visible message.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// Service produces the next assistant reply for a conversation.
type Service interface {
	Complete(ctx context.Context, turns []llm.Turn) (string, error)
}

// Kind classifies a Fault.
type Kind string

const (
	KindTransport Kind = "transport" // unreachable, timed out, 5xx
	KindAuth      Kind = "auth"      // rejected credentials
	KindQuota     Kind = "quota"     // rate limited or out of credit
	KindMalformed Kind = "malformed" // a response we could not use
)

// Fault is a failed completion call. Error returns the underlying message
// unchanged so it can be shown to a user as is.
type Fault struct {
	Provider   string
	Kind       Kind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (f *Fault) Error() string {
	return f.Err.Error()
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault returns err as a *Fault, wrapping errors that are not already one
// as transport faults.
func AsFault(provider string, err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Provider: provider, Kind: KindTransport, Err: err}
}

// KindForStatus maps an HTTP status code to a fault kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return KindQuota
	default:
		return KindTransport
	}
}

func malformed(provider string, format string, args ...any) *Fault {
	return &Fault{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

// reply validates the text extracted from a provider response.
func reply(provider, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", malformed(provider, "%s returned an empty completion", provider)
	}
	return text, nil
}

// Options are shared by every provider.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
	Logger      *zap.Logger
}

func (o Options) httpClient() *http.Client {
	return &http.Client{Timeout: o.Timeout}
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// New builds the Service for the configured provider.
func New(cfg config.Completion, logger *zap.Logger) (Service, error) {
	opts := Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout.Duration,
		Logger:      logger,
	}

	switch cfg.Provider {
	case config.ProviderGroq:
		if opts.BaseURL == "" {
			opts.BaseURL = GroqBaseURL
		}
		return NewOpenAI(config.ProviderGroq, opts), nil
	case config.ProviderOpenAI:
		return NewOpenAI(config.ProviderOpenAI, opts), nil
	case config.ProviderAnthropic:
		return NewAnthropic(opts), nil
	case config.ProviderOllama:
		return NewOllama(opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

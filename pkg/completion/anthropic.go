package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// defaultAnthropicMaxTokens is used when none is configured; the Messages
// API requires a limit.
const defaultAnthropicMaxTokens = 1024

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropic creates a client.
func NewAnthropic(opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(opts.httpClient()),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultAnthropicMaxTokens
	}

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Complete sends the turns as messages and joins the text blocks of the reply.
func (p *Anthropic) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		switch t.Role {
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		Messages:  messages,
		MaxTokens: int64(p.opts.MaxTokens),
	}
	if p.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*p.opts.Temperature)
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.fault(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	p.opts.logger().Debug("completion received",
		zap.String("provider", config.ProviderAnthropic),
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return reply(config.ProviderAnthropic, text.String())
}

func (p *Anthropic) fault(err error) *Fault {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Fault{
			Provider:   config.ProviderAnthropic,
			Kind:       KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &Fault{Provider: config.ProviderAnthropic, Kind: KindTransport, Err: err}
}

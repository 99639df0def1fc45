package completion

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// OpenAI talks to any OpenAI-compatible chat completions API.
type OpenAI struct {
	client   openai.Client
	provider string
	opts     Options
}

// NewOpenAI creates a client. provider only labels faults and logs.
func NewOpenAI(provider string, opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(opts.httpClient()),
		// A failed exchange is reported, never retried.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAI{
		client:   openai.NewClient(reqOpts...),
		provider: provider,
		opts:     opts,
	}
}

// Complete sends the turns as chat messages and returns the first choice.
func (p *OpenAI) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.opts.Model),
		Messages: messages,
	}
	if p.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.opts.MaxTokens))
	}
	if p.opts.Temperature != nil {
		params.Temperature = openai.Float(*p.opts.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.fault(err)
	}

	if len(resp.Choices) == 0 {
		return "", malformed(p.provider, "%s returned no choices", p.provider)
	}

	p.opts.logger().Debug("completion received",
		zap.String("provider", p.provider),
		zap.String("model", resp.Model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return reply(p.provider, resp.Choices[0].Message.Content)
}

func (p *OpenAI) fault(err error) *Fault {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Fault{
			Provider:   p.provider,
			Kind:       KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &Fault{Provider: p.provider, Kind: KindTransport, Err: err}
}

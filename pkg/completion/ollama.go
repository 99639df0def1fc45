package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// OllamaBaseURL is the default local Ollama server.
const OllamaBaseURL = "http://localhost:11434"

// Ollama talks to an Ollama-compatible /api/chat endpoint.
type Ollama struct {
	opts       Options
	httpClient *http.Client
}

// NewOllama creates a client. No API key is sent.
func NewOllama(opts Options) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = OllamaBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Ollama{
		opts:       opts,
		httpClient: opts.httpClient(),
	}
}

// Complete forwards a non-streaming chat request upstream.
func (p *Ollama) Complete(ctx context.Context, turns []llm.Turn) (string, error) {
	streaming := false
	req := llm.ChatRequest{
		Model:    p.opts.Model,
		Messages: turns,
		Stream:   &streaming,
	}
	if p.opts.MaxTokens > 0 || p.opts.Temperature != nil {
		req.Options = &llm.Options{Temperature: p.opts.Temperature}
		if p.opts.MaxTokens > 0 {
			n := p.opts.MaxTokens
			req.Options.NumPredict = &n
		}
	}

	resp, err := p.forwardRequest(ctx, &req)
	if err != nil {
		return "", err
	}

	return reply(config.ProviderOllama, resp.Message.Content)
}

func (p *Ollama) forwardRequest(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, malformed(config.ProviderOllama, "marshal request: %w", err)
	}

	upstreamURL := p.opts.BaseURL + "/api/chat"
	p.opts.logger().Debug("forwarding request to upstream",
		zap.String("url", upstreamURL),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, AsFault(config.ProviderOllama, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, AsFault(config.ProviderOllama, fmt.Errorf("do request: %w", err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, AsFault(config.ProviderOllama, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &Fault{
			Provider:   config.ProviderOllama,
			Kind:       KindForStatus(httpResp.StatusCode),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("upstream returned %d: %s", httpResp.StatusCode, upstreamMessage(body)),
		}
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(config.ProviderOllama, "unmarshal response: %w", err)
	}

	p.opts.logger().Debug("received response from upstream",
		zap.String("model", resp.Model),
		zap.Int("eval_count", resp.EvalCount),
		zap.Duration("duration", time.Since(start)),
	)

	return &resp, nil
}

// upstreamMessage prefers the "error" field of an Ollama error body over the
// raw body.
func upstreamMessage(body []byte) string {
	var apiErr llm.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(body))
}

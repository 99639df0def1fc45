// Package exchange runs one request/response cycle against the conversation
// store: the user turn and the assistant reply are always appended together,
// and a failed completion is recorded as a visible assistant turn rather than
// an error.
package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/completion"
	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/logger"
	"github.com/papercomputeco/chatkeep/pkg/storage"
)

// NoConversation is the summary of an empty conversation.
const NoConversation = "No conversation yet."

const summaryPrompt = "Summarize the following conversation briefly:\n"

// Exchange couples a conversation store with a completion service.
// The store is the source of truth; Exchange keeps no copy between calls.
type Exchange struct {
	store     storage.Store
	completer completion.Service
	logger    *zap.Logger

	// mu serializes load-append-save within the process. It is taken before
	// the store lock, which does not exclude callers sharing one store.
	mu sync.Mutex
}

// New creates an Exchange.
func New(store storage.Store, completer completion.Service, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		store:     store,
		completer: completer,
		logger:    logger,
	}
}

// Reply is the outcome of an exchange or summary. Fault is set when Text
// stands in for a failed completion.
type Reply struct {
	Text  string
	Fault *completion.Fault
}

// Failed reports whether the completion behind r failed.
func (r Reply) Failed() bool {
	return r.Fault != nil
}

// HandleUserMessage appends text and the assistant's reply to the
// conversation and returns the reply. A completion failure produces an
// "Error: ..." reply that is persisted like any other; only validation and
// storage failures are returned as errors.
func (e *Exchange) HandleUserMessage(ctx context.Context, text string) (string, error) {
	r, err := e.Send(ctx, text)
	return r.Text, err
}

// Send is HandleUserMessage keeping the completion fault, if any.
func (e *Exchange) Send(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.lock(ctx)
	if err != nil {
		return Reply{}, err
	}
	defer func() {
		if err := unlock(); err != nil {
			e.logger.Warn("failed to release store lock", zap.Error(err))
		}
	}()

	conv, err := e.store.Load(ctx)
	if err != nil {
		return Reply{}, err
	}

	conv = conv.Append(llm.UserTurn(text))
	e.logger.Debug("user turn received",
		zap.Int("history_len", len(conv)),
		zap.String("content_preview", logger.Truncate(text, 50)),
	)

	start := time.Now()
	var r Reply
	r.Text, err = e.completer.Complete(ctx, conv)
	if err == nil && strings.TrimSpace(r.Text) == "" {
		err = &completion.Fault{Kind: completion.KindMalformed, Err: errors.New("empty completion")}
	}
	if err != nil {
		r.Fault = completion.AsFault("", err)
		e.logger.Error("completion failed",
			zap.String("provider", r.Fault.Provider),
			zap.String("kind", string(r.Fault.Kind)),
			zap.Int("status", r.Fault.StatusCode),
			zap.Error(r.Fault),
		)
		r.Text = FaultReply(r.Fault)
	} else {
		e.logger.Debug("completion received",
			zap.String("content_preview", logger.Truncate(r.Text, 100)),
			zap.Duration("duration", time.Since(start)),
		)
	}

	conv = conv.Append(llm.AssistantTurn(r.Text))
	if err := e.store.Save(ctx, conv); err != nil {
		e.logger.Error("failed to store conversation", zap.Error(err))
		return Reply{}, err
	}

	e.logger.Info("conversation stored", zap.Int("turns", len(conv)))
	return r, nil
}

func (e *Exchange) lock(ctx context.Context) (func() error, error) {
	locker, ok := e.store.(storage.Locker)
	if !ok {
		return func() error { return nil }, nil
	}
	return locker.Lock(ctx)
}

// Summarize asks for a short summary of the conversation. The prompt is sent
// on its own and is never stored.
func (e *Exchange) Summarize(ctx context.Context) (string, error) {
	r, err := e.Summary(ctx)
	return r.Text, err
}

// Summary is Summarize keeping the completion fault, if any.
func (e *Exchange) Summary(ctx context.Context) (Reply, error) {
	conv, err := e.store.Load(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(conv) == 0 {
		return Reply{Text: NoConversation}, nil
	}

	summary, err := e.completer.Complete(ctx, []llm.Turn{llm.UserTurn(SummaryPrompt(conv))})
	if err != nil {
		fault := completion.AsFault("", err)
		e.logger.Error("summary failed",
			zap.String("kind", string(fault.Kind)),
			zap.Error(fault),
		)
		return Reply{Text: SummaryFaultReply(fault), Fault: fault}, nil
	}

	return Reply{Text: summary}, nil
}

// SummaryPrompt renders conv as the single prompt used by Summarize.
func SummaryPrompt(conv llm.Conversation) string {
	lines := make([]string, len(conv))
	for i, t := range conv {
		lines[i] = string(t.Role) + ": " + t.Content
	}
	return summaryPrompt + strings.Join(lines, "\n")
}

// Load returns the stored conversation.
func (e *Exchange) Load(ctx context.Context) (llm.Conversation, error) {
	return e.store.Load(ctx)
}

// Clear empties the stored conversation.
func (e *Exchange) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock() //nolint:errcheck // best effort

	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.logger.Info("conversation cleared")
	return nil
}

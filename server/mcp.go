package server

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// Version is reported to MCP clients.
var Version = "dev"

type chatInput struct {
	Message string `json:"message" jsonschema:"the user message to add to the conversation"`
}

type chatOutput struct {
	Reply string `json:"reply"`
}

type noInput struct{}

type summaryOutput struct {
	Summary string `json:"summary"`
}

type conversationOutput struct {
	Conversation []llm.Turn `json:"conversation"`
}

type clearOutput struct {
	Status string `json:"status"`
}

// NewMCPServer registers the conversation tools on a new MCP server.
func NewMCPServer(ex Exchanger, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "chatkeep", Version: Version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "chat",
		Description: "Send a message in the persistent conversation and return the assistant's reply.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in chatInput) (*mcp.CallToolResult, chatOutput, error) {
		reply, err := ex.HandleUserMessage(ctx, in.Message)
		if err != nil {
			return nil, chatOutput{}, err
		}
		logger.Debug("mcp chat handled")
		return nil, chatOutput{Reply: reply}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "summarize",
		Description: "Summarize the persistent conversation.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, summaryOutput, error) {
		summary, err := ex.Summarize(ctx)
		if err != nil {
			return nil, summaryOutput{}, err
		}
		return nil, summaryOutput{Summary: summary}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "load_conversation",
		Description: "Return every turn of the persistent conversation, oldest first.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, conversationOutput, error) {
		conv, err := ex.Load(ctx)
		if err != nil {
			return nil, conversationOutput{}, err
		}
		return nil, conversationOutput{Conversation: conv.Clone()}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_conversation",
		Description: "Delete every turn of the persistent conversation.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, clearOutput, error) {
		if err := ex.Clear(ctx); err != nil {
			return nil, clearOutput{}, err
		}
		return nil, clearOutput{Status: "cleared"}, nil
	})

	return srv
}

// NewMCPHandler serves the conversation tools over streamable HTTP. Sessions
// are stateless and answered with plain JSON.
func NewMCPHandler(ex Exchanger, logger *zap.Logger) http.Handler {
	srv := NewMCPServer(ex, logger)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, &mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true})
}

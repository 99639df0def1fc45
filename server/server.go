// Package server exposes the conversation over HTTP and MCP.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/exchange"
	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/logger"
)

//go:embed static/index.html
var indexHTML []byte

// Exchanger is the conversation the server operates on.
type Exchanger interface {
	HandleUserMessage(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context) (string, error)
	Load(ctx context.Context) (llm.Conversation, error)
	Clear(ctx context.Context) error
}

// Server serves one conversation over HTTP. All state lives in the
// Exchanger's store; the server itself holds none.
type Server struct {
	config   Config
	exchange Exchanger
	logger   *zap.Logger
	app      *fiber.App
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type loadResponse struct {
	Conversation llm.Conversation `json:"conversation"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// New creates a Server and registers its routes.
func New(config Config, ex Exchanger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		exchange: ex,
		logger:   logger,
		app:      app,
	}

	app.Use(s.requestLogger)
	if config.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: config.CORSOrigins}))
	}

	app.Get("/", s.handleIndex)
	app.Get("/load", s.handleLoad)
	app.Post("/chat", s.handleChat)
	app.Get("/summary", s.handleSummary)
	app.Post("/clear", s.handleClear)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Status: "ok"})
	})

	app.All("/mcp", adaptor.HTTPHandler(NewMCPHandler(ex, logger)))

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting chat server", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting chat server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)

	err := c.Next()

	s.logger.Debug("request handled",
		zap.String("request_id", id),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}

func (s *Server) handleLoad(c *fiber.Ctx) error {
	conv, err := s.exchange.Load(c.UserContext())
	if err != nil {
		s.logger.Error("failed to load conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load conversation"})
	}
	return c.JSON(loadResponse{Conversation: conv.Clone()})
}

// handleChat runs one exchange. Completion failures still answer 200 with the
// error text as the reply; only bad input and storage failures are errors.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Error("failed to parse request", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
		}
	}

	s.logger.Debug("received chat request",
		zap.String("content_preview", logger.Truncate(req.Message, 50)),
	)

	reply, err := s.exchange.HandleUserMessage(c.UserContext(), req.Message)
	if err != nil {
		var verr *exchange.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: verr.Reason})
		}
		s.logger.Error("chat exchange failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to store conversation"})
	}

	return c.JSON(chatResponse{Reply: reply})
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	summary, err := s.exchange.Summarize(c.UserContext())
	if err != nil {
		s.logger.Error("failed to summarize conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load conversation"})
	}
	return c.JSON(summaryResponse{Summary: summary})
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	if err := s.exchange.Clear(c.UserContext()); err != nil {
		s.logger.Error("failed to clear conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to clear conversation"})
	}
	return c.JSON(statusResponse{Status: "cleared"})
}

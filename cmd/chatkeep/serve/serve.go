package servecmder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
	"github.com/papercomputeco/chatkeep/server"
)

const serveLongDesc string = `Serve the conversation over HTTP.

Routes:
  GET  /         chat page
  GET  /load     the stored conversation
  POST /chat     {"message": "..."} -> {"reply": "..."}
  GET  /summary  a short summary of the conversation
  POST /clear    delete every turn
  GET  /health   liveness
  /mcp           MCP tools (chat, summarize, load_conversation, clear_conversation)

Examples:
  chatkeep serve
  chatkeep serve --listen :9000 --backend sqlite
  GROQ_API_KEY=gsk_... chatkeep serve --store ./conversation.json`

const serveShortDesc string = "Serve the conversation over HTTP and MCP"

// shutdownTimeout bounds how long in-flight exchanges may finish after a signal.
const shutdownTimeout = 30 * time.Second

type serveCommander struct {
	flags  cliconfig.Flags
	listen string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return cmder.run(ctx, cmd)
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default :8080)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen = c.listen
	}

	log := cliconfig.Logger(cfg, true)
	defer func() { _ = log.Sync() }()

	if err := cliconfig.EnsureAPIKey(cfg, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}

	ex, store, err := cliconfig.OpenExchange(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.Server.Listen, err)
	}

	srv := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, ex, log)

	log.Info("chatkeep starting",
		zap.String("listen", ln.Addr().String()),
		zap.String("provider", cfg.Completion.Provider),
		zap.String("model", cfg.Completion.Model),
		zap.String("backend", cfg.Storage.Backend),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.RunWithListener(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// signalContext is cancelled on the first interrupt; a second one exits.
func signalContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	interrupt := make(chan os.Signal, 2)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-interrupt:
		case <-ctx.Done():
			return
		}
		cancel()
		<-interrupt
		fmt.Fprintln(os.Stderr, "forcing shutdown")
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(interrupt)
		cancel()
	}
}

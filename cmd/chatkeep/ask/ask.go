package askcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
	"github.com/papercomputeco/chatkeep/cmd/chatkeep/render"
	"github.com/papercomputeco/chatkeep/pkg/completion"
	"github.com/papercomputeco/chatkeep/pkg/exchange"
	"github.com/papercomputeco/chatkeep/pkg/llm"
)

const askLongDesc string = `Talk to the assistant from the terminal.

With a message, one exchange is run and the reply printed. Without one,
lines are read from stdin until EOF or "exit"; every line is an exchange.
Both user and assistant turns are stored.

--once sends the message on its own and stores nothing.

Examples:
  chatkeep ask "Explain GenAI"
  chatkeep ask
  chatkeep ask --once "What is a transformer?"`

const askShortDesc string = "Send messages to the assistant"

type askCommander struct {
	flags cliconfig.Flags
	once  bool
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: askShortDesc,
		Long:  askLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, strings.Join(args, " "))
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().BoolVar(&cmder.once, "once", false, "Send a single prompt without reading or storing the conversation")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, message string) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}
	log := cliconfig.Logger(cfg, false)

	if err := cliconfig.EnsureAPIKey(cfg, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
		return err
	}

	out := render.New(cmd.OutOrStdout())

	if c.once {
		if strings.TrimSpace(message) == "" {
			return errors.New("--once needs a message")
		}
		completer, err := completion.New(cfg.Completion, log)
		if err != nil {
			return err
		}
		reply, err := completer.Complete(ctx, []llm.Turn{llm.UserTurn(message)})
		if err != nil {
			return fmt.Errorf("completion failed: %w", err)
		}
		return out.Markdown(reply)
	}

	ex, store, err := cliconfig.OpenExchange(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if message != "" {
		return exchangeOnce(ctx, ex, out, message)
	}
	return c.loop(ctx, cmd, ex, out)
}

func exchangeOnce(ctx context.Context, ex *exchange.Exchange, out *render.Printer, message string) error {
	reply, err := ex.Send(ctx, message)
	if err != nil {
		return err
	}
	if reply.Failed() {
		out.Error(reply.Text)
		return nil
	}
	return out.Markdown(reply.Text)
}

func (c *askCommander) loop(ctx context.Context, cmd *cobra.Command, ex *exchange.Exchange, out *render.Printer) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	prompt := func() { fmt.Fprint(cmd.ErrOrStderr(), "> ") }

	for prompt(); scanner.Scan(); prompt() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := exchangeOnce(ctx, ex, out, line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

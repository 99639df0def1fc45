package summarycmder

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
	"github.com/papercomputeco/chatkeep/cmd/chatkeep/render"
)

const summaryLongDesc string = `Summarize the stored conversation.

The summary prompt is sent on its own and is not stored. An empty
conversation is reported without calling the provider.

Examples:
  chatkeep summary
  chatkeep summary --provider anthropic`

const summaryShortDesc string = "Summarize the conversation"

type summaryCommander struct {
	flags cliconfig.Flags
}

func NewSummaryCmd() *cobra.Command {
	cmder := &summaryCommander{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: summaryShortDesc,
		Long:  summaryLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmder.flags.Register(cmd)

	return cmd
}

func (c *summaryCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}
	log := cliconfig.Logger(cfg, false)

	store, err := cliconfig.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.Load(ctx)
	if err != nil {
		return err
	}
	// Only ask for a key when the provider will actually be called.
	if len(conv) > 0 {
		if err := cliconfig.EnsureAPIKey(cfg, cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	ex, err := cliconfig.NewExchange(cfg, store, log)
	if err != nil {
		return err
	}

	summary, err := ex.Summary(ctx)
	if err != nil {
		return err
	}

	out := render.New(cmd.OutOrStdout())
	if summary.Failed() {
		out.Error(summary.Text)
		return nil
	}
	return out.Markdown(summary.Text)
}

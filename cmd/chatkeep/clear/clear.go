package clearcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
)

const clearLongDesc string = `Delete every turn of the stored conversation.

Examples:
  chatkeep clear
  chatkeep clear --store ./conversation.json`

const clearShortDesc string = "Clear the conversation"

type clearCommander struct {
	flags cliconfig.Flags
}

func NewClearCmd() *cobra.Command {
	cmder := &clearCommander{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: clearShortDesc,
		Long:  clearLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmder.flags.Register(cmd)

	return cmd
}

func (c *clearCommander) run(ctx context.Context, cmd *cobra.Command) error {
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

	// Clearing needs no provider; the exchange is only used for its locking.
	ex, err := cliconfig.NewExchange(cfg, store, log)
	if err != nil {
		return err
	}

	conv, err := ex.Load(ctx)
	if err != nil {
		return err
	}
	if err := ex.Clear(ctx); err != nil {
		return fmt.Errorf("could not clear conversation: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d turns.\n", len(conv))
	return nil
}

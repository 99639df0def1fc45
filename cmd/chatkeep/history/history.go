package historycmder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatkeep/cmd/chatkeep/cliconfig"
	"github.com/papercomputeco/chatkeep/cmd/chatkeep/render"
)

const historyLongDesc string = `Print the stored conversation, oldest turn first.

--raw prints the conversation as the JSON array kept in the store file.

Examples:
  chatkeep history
  chatkeep history --raw | jq '.[-1].content'
  chatkeep history --backend sqlite`

const historyShortDesc string = "Print the conversation"

type historyCommander struct {
	flags cliconfig.Flags
	raw   bool
	last  int
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the conversation as JSON")
	cmd.Flags().IntVarP(&cmder.last, "last", "n", 0, "Only print the last n turns")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}

	store, err := cliconfig.OpenStore(ctx, cfg, cliconfig.Logger(cfg, false))
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if c.last > 0 && c.last < len(conv) {
		conv = conv[len(conv)-c.last:]
	}

	if c.raw {
		data, err := json.MarshalIndent(conv.Clone(), "", "  ")
		if err != nil {
			return fmt.Errorf("could not marshal conversation: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	return render.New(cmd.OutOrStdout()).Conversation(conv)
}

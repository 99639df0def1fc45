package migratecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/config"
	"github.com/papercomputeco/chatkeep/pkg/storage/backend"
)

const migrateLongDesc string = `Copy the conversation from one store to another.

The source is loaded whole and saved to the target in one step.
A non-empty target is refused unless --force is given.

Examples:
  chatkeep migrate --from conversation.json --to ~/.chatkeep/chatkeep.db --to-backend sqlite
  chatkeep migrate --from-backend sqlite --from old.db --to conversation.json --force`

const migrateShortDesc string = "Copy the conversation between stores"

type migrateCommander struct {
	fromBackend string
	fromPath    string
	toBackend   string
	toPath      string
	force       bool
}

func NewMigrateCmd() *cobra.Command {
	cmder := &migrateCommander{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: migrateShortDesc,
		Long:  migrateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.fromBackend, "from-backend", config.BackendJSONFile, "Source storage backend")
	cmd.Flags().StringVar(&cmder.fromPath, "from", "", "Source store path")
	cmd.Flags().StringVar(&cmder.toBackend, "to-backend", config.BackendJSONFile, "Target storage backend")
	cmd.Flags().StringVar(&cmder.toPath, "to", "", "Target store path")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Overwrite a non-empty target")

	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func (c *migrateCommander) run(ctx context.Context, cmd *cobra.Command) error {
	log := zap.NewNop()

	// A corrupt source must not be silently reset while migrating.
	source, err := backend.Open(ctx, config.Storage{
		Backend:   c.fromBackend,
		Path:      c.fromPath,
		OnCorrupt: config.OnCorruptStrict,
	}, log)
	if err != nil {
		return fmt.Errorf("could not open source %s: %w", c.fromPath, err)
	}
	defer source.Close()

	target, err := backend.Open(ctx, config.Storage{
		Backend:   c.toBackend,
		Path:      c.toPath,
		OnCorrupt: config.OnCorruptStrict,
	}, log)
	if err != nil {
		return fmt.Errorf("could not open target %s: %w", c.toPath, err)
	}
	defer target.Close()

	conv, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not load source %s: %w", c.fromPath, err)
	}

	existing, err := target.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not load target %s: %w", c.toPath, err)
	}
	if len(existing) > 0 && !c.force {
		return fmt.Errorf("target %s already holds %d turns; use --force to overwrite", c.toPath, len(existing))
	}

	if err := target.Save(ctx, conv); err != nil {
		return fmt.Errorf("could not save target %s: %w", c.toPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Copied %d turns from %s (%s) to %s (%s)\n",
		len(conv), c.fromPath, c.fromBackend, c.toPath, c.toBackend)

	return nil
}

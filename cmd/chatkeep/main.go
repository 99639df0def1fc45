package main

import (
	"os"

	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/ask"
	clearcmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/clear"
	historycmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/history"
	migratecmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/migrate"
	sendcmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/send"
	servecmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/serve"
	summarycmder "github.com/papercomputeco/chatkeep/cmd/chatkeep/summary"
	"github.com/papercomputeco/chatkeep/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const rootLongDesc string = `chatkeep keeps one conversation with a chat model.

Every message is sent with the full history to the configured provider
(Groq by default) and both turns are stored. The conversation can be
used from the terminal, over HTTP, or as MCP tools.

Configuration is read from ~/.chatkeep/config.toml, .env and CHATKEEP_*
environment variables; flags win over all of them.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatkeep",
		Short:        "A persistent chat session",
		Long:         rootLongDesc,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		servecmder.NewServeCmd(),
		askcmder.NewAskCmd(),
		sendcmder.NewSendCmd(),
		summarycmder.NewSummaryCmd(),
		historycmder.NewHistoryCmd(),
		clearcmder.NewClearCmd(),
		migratecmder.NewMigrateCmd(),
	)

	return cmd
}

func main() {
	server.Version = version

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

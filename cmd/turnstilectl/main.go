package main

import (
	"os"

	"turnstile/internal/services/api"

	"github.com/spf13/cobra"
)

func main() {
	api.LoadEnv()
	root := &cobra.Command{
		Use:           "turnstilectl",
		Short:         "Operate turnstile buffers, outbox and conversations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		migrateCmd(),
		pingCmd(),
		statusCmd(),
		turnsCmd(),
		sweepCmd(),
		conversationCmd(),
		endCmd(),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

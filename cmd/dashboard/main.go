package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Weather dashboard for current conditions and the 5-day forecast",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// LOG_LEVEL and LOG_FILE may live in .env; config.Load reads it again for the rest.
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newServeCmd(), newTUICmd())
	return root
}

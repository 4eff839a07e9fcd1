package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := serveCmd()

	rootCmd := &cobra.Command{
		Use:   "pixelboard",
		Short: "Real-time multiplayer pixel canvas server",
		Long: `pixelboard serves a shared pixel canvas over websockets.

Clients paint single pixels and see everyone else's edits live. Every
change is kept in an event-sourced history that is saved to disk
periodically and on shutdown.`,
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the bare binary starts the server.
		RunE: serve.RunE,
		Args: cobra.NoArgs,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(serve, inspectCmd())
	return rootCmd
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

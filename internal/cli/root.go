// Package cli implements the paymeshd command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/paymesh/internal/version"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:   "paymeshd",
		Short: "Payment-orchestrated multi-agent data service",
		Long: `Paymeshd runs a pipeline of specialized agents that discover paid data
services, negotiate Skyfire payment tokens and execute Dappier data
queries on behalf of a buyer, exposed over an HTTP chat API.`,
		Version:      version.Version,
		SilenceUsage: true,
		// Running the bare binary starts the server.
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.paymesh/paymesh.json)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

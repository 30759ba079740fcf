// Package cmd wires the tono-server CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(version, buildTime string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tono-server",
		Short: "tono-server is the API backend for the tono guitar tone app.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newVersionCmd(version, buildTime))
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func Execute(version, buildTime string) error {
	if err := newRootCmd(version, buildTime).Execute(); err != nil {
		return fmt.Errorf("error executing root command: %w", err)
	}
	return nil
}

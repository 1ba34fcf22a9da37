// Package cli implements the entitygraph command line.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the entitygraph root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entitygraph",
		Short: "Normalized entity store for roles, issues, tags and users",
		Long: `entitygraph keeps roles, issues, tags and users in normalized tables with
tag/issue and user/tag associations, and assembles nested user and tag views
on read.

Configuration comes from defaults, an optional YAML file (--config or
ENTITYGRAPH_CONFIG) and ENTITYGRAPH_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewListBackupsCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))

	return cmd
}

// Package app implements the memldap command line.
package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd creates the root command with its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "memldap",
		Short:        "In-memory LDAP directory server",
		SilenceUsage: true,
		Long: `memldap serves an in-memory LDAP directory described by a fixture file,
the same YAML format used by the ldaptest package.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.AddCommand(newServeCmd())
	return root
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, err
	}
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

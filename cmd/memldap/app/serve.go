package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/merlinz01/memldap"
	"github.com/merlinz01/memldap/ldaptest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveOptions struct {
	configPath string
	exportPath string
	log        *zap.Logger
	// Called once the listeners accept connections
	started func(*ldaptest.Rule)
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a fixture until interrupted",
		Long: `Seed a directory from a fixture file and serve it until SIGINT or SIGTERM.

The fixture file (--config) names the base DNs, the listener ports and the
LDIF files to import. With --export the final directory contents are
written as LDIF before the server stops.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(cmd)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck
			opts.log = log
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to the fixture file (YAML format, required)")
	cmd.Flags().StringVar(&opts.exportPath, "export", "", "Write the directory contents to this LDIF file on shutdown")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions, out io.Writer) error {
	b, err := ldaptest.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load fixture: %w", err)
	}
	rule, err := b.Logger(opts.log).Build()
	if err != nil {
		return err
	}
	return rule.Evaluate(opts.configPath, func() error {
		server := rule.Server()
		for i := 0; ; i++ {
			port := server.ListenPortFor(ldaptest.ListenerName(i))
			if port < 0 {
				break
			}
			fmt.Fprintf(out, "%s ldap://%s:%d\n", ldaptest.ListenerName(i), memldap.DefaultListenAddress, port)
		}
		opts.log.Info("Serving directory", zap.Int("entries", server.EntryCount()), zap.Strings("baseDNs", server.BaseDNs()))
		if opts.started != nil {
			opts.started(rule)
		}
		<-ctx.Done()
		opts.log.Info("Shutting down")
		if opts.exportPath == "" {
			return nil
		}
		n, err := server.ExportToLDIF(opts.exportPath)
		if err != nil {
			return err
		}
		opts.log.Info("Exported directory", zap.String("path", opts.exportPath), zap.Int("entries", n))
		return nil
	})
}

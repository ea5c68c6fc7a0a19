package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Options holds CLI options for the node.
type Options struct {
	ConfigPath string
	Instance   string
	WaitPeers  bool
}

func newRootCmd() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:   "muscle-node",
		Short: "Serve an instance's outgoing messages to its peers",
		Long: `muscle-node hosts the post office of one instance. It listens on every
configured transport, registers the resulting locations, and on SIGINT or
SIGTERM waits for receivers to collect what is queued before deregistering.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, opts); err != nil {
				fmt.Fprintln(os.Stderr, "muscle-node:", err)
				return err
			}
			return nil
		},
	}
	cmd.SetContext(context.Background())
	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	f.StringVar(&opts.Instance, "instance", "", "instance reference, overrides the config file")
	f.BoolVar(&opts.WaitPeers, "wait-peers", false, "wait until every peer instance is registered and reachable (requires registry.backend: redis)")
	return cmd
}

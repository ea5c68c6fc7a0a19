package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/topology"
)

func newResolveCmd() *cobra.Command {
	var (
		model    string
		instance string
		port     string
		slot     []int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the peer endpoints a port of an instance talks to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := topology.Load(model)
			if err != nil {
				return failure("cannot load model", err)
			}
			inst, err := ref.ParseReference(instance)
			if err != nil {
				return failure("invalid instance", err)
			}
			p, err := ref.NewIdentifier(port)
			if err != nil {
				return failure("invalid port", err)
			}
			pm, err := m.Manager(inst, nil)
			if err != nil {
				return failure("invalid instance", err)
			}
			if !pm.IsConnected(p) {
				warning("%s.%s is not connected\n", inst, p)
				return nil
			}
			eps, err := pm.PeerEndpoints(p, slot)
			if err != nil {
				return failure("cannot resolve", err)
			}
			out := cmd.OutOrStdout()
			for _, ep := range eps {
				fmt.Fprintln(out, ep)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&model, "model", "model.yaml", "topology file")
	f.StringVar(&instance, "instance", "", "instance reference, e.g. macro or micro[2]")
	f.StringVar(&port, "port", "", "port name")
	f.IntSliceVar(&slot, "slot", nil, "slot indices, repeatable")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

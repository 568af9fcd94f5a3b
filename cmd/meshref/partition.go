package main

import (
	"github.com/spf13/cobra"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/graph"
	"github.com/notargets/meshkernel/mesh"
)

func partitionCmd(cfg *config) *cobra.Command {
	var parts int
	cmd := &cobra.Command{
		Use:   "partition FILE",
		Short: "Partition a mesh's dual graph and report the quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg.Verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			part, err := strategyFunc(cfg.Strategy)
			if err != nil {
				return err
			}
			cells, ids, x, err := readCells(args[0])
			if err != nil {
				return err
			}
			if parts == 0 {
				parts = cfg.Ranks
			}
			w, err := comm.NewWorld(cfg.Ranks, comm.WithLogger(log))
			if err != nil {
				return err
			}
			return w.Run(func(c *comm.Comm) error {
				cc, _, _ := rankInput(c.Rank(), cells, ids, x)
				dual, numGhostNodes, err := mesh.DualGraph(c, mesh.Tetrahedron, cc)
				if err != nil {
					return err
				}
				dests, err := part(c, parts, dual, numGhostNodes, false)
				if err != nil {
					return err
				}
				stats, err := graph.AnalyzePartition(c, parts, dual, dests)
				if err != nil {
					return err
				}
				if c.Rank() != 0 {
					return nil
				}
				cmd.Printf("strategy:  %s\n", cfg.Strategy)
				cmd.Printf("parts:     %d\n", parts)
				cmd.Printf("edge cut:  %d\n", stats.EdgeCut)
				cmd.Printf("imbalance: %.3f\n", stats.Imbalance)
				for p, n := range stats.Counts {
					conn := "connected"
					if !stats.Connected[p] {
						conn = "disconnected"
					}
					cmd.Printf("  part %2d: %6d cells  %s\n", p, n, conn)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&parts, "parts", 0, "part count (default: ranks)")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/mesh"
	"github.com/notargets/meshkernel/refine"
)

func refineCmd(cfg *config) *cobra.Command {
	var rounds int
	var markerBox string
	cmd := &cobra.Command{
		Use:   "refine FILE",
		Short: "Refine a mesh by edge subdivision",
		Long: `refine subdivides the mesh uniformly, or only inside an axis-aligned
box given as --box x0,y0,z0,x1,y1,z1. Cells whose midpoint falls in the
box are marked; mark propagation keeps the result conforming.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cfg.Verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			mode, err := ghostMode(cfg.GhostMode)
			if err != nil {
				return err
			}
			part, err := strategyFunc(cfg.Strategy)
			if err != nil {
				return err
			}
			var box []float64
			if markerBox != "" {
				if box, err = parseBox(markerBox); err != nil {
					return err
				}
			}
			cells, ids, x, err := readCells(args[0])
			if err != nil {
				return err
			}
			w, err := comm.NewWorld(cfg.Ranks, comm.WithLogger(log))
			if err != nil {
				return err
			}
			return w.Run(func(c *comm.Comm) error {
				cc, ci, cx := rankInput(c.Rank(), cells, ids, x)
				m, err := mesh.Create(c, mesh.Tetrahedron, cc, ci, cx, 3,
					mesh.CellPartitionerFromGraph(part), mode, log)
				if err != nil {
					return err
				}
				for round := 1; round <= rounds; round++ {
					opts := []refine.Option{
						refine.WithPartitioner(mesh.CellPartitionerFromGraph(part)),
						refine.WithGhostMode(mode),
						refine.WithLogger(log),
					}
					if box != nil {
						flags, err := cellsInBox(m, box)
						if err != nil {
							return err
						}
						opts = append(opts, refine.WithMarker(m.Topology.Dim(), flags))
					}
					refined, rep, err := refine.Refine(m, opts...)
					if err != nil {
						return err
					}
					if c.Rank() == 0 {
						cmd.Printf("round %d: cells %d -> %d, %d new vertices, %d propagation rounds, %s\n",
							round, rep.CellsBefore, rep.CellsAfter, rep.NewVertices,
							rep.Rounds, rep.Elapsed.Round(time.Microsecond))
					}
					m = refined
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 1, "refinement rounds")
	cmd.Flags().StringVar(&markerBox, "box", "", "marker box x0,y0,z0,x1,y1,z1")
	return cmd
}

// cellsInBox flags every local cell whose midpoint lies inside the box.
func cellsInBox(m *mesh.Mesh, box []float64) ([]bool, error) {
	tdim := m.Topology.Dim()
	n := m.Topology.IndexMap(tdim).SizeTotal()
	all := make([]int32, n)
	for i := range all {
		all[i] = int32(i)
	}
	mids, err := mesh.Midpoints(m, tdim, all)
	if err != nil {
		return nil, err
	}
	gdim := m.Geometry.GDim
	flags := make([]bool, n)
	for i := range flags {
		in := true
		for k := 0; k < gdim; k++ {
			v := mids[i*gdim+k]
			if v < box[k] || v > box[3+k] {
				in = false
				break
			}
		}
		flags[i] = in
	}
	return flags, nil
}

func parseBox(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 6 {
		return nil, fmt.Errorf("box needs 6 comma-separated values, got %d", len(fields))
	}
	box := make([]float64, 6)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("box value %q: %w", f, err)
		}
		box[i] = v
	}
	return box, nil
}

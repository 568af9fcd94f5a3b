package main

import (
	"github.com/spf13/cobra"

	"github.com/notargets/meshkernel/comm"
	"github.com/notargets/meshkernel/mesh"
)

func infoCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Report entity counts and boundary size of a mesh",
		Args:  cobra.ExactArgs(1),
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
				m, err := mesh.Create(c, mesh.Tetrahedron, cc, ci, cx, 3, nil, mode, log)
				if err != nil {
					return err
				}
				topo := m.Topology
				for dim := 1; dim < topo.Dim(); dim++ {
					if err := topo.CreateEntities(dim); err != nil {
						return err
					}
				}
				ext, err := topo.ExteriorFacets()
				if err != nil {
					return err
				}
				iface, err := topo.InterfaceFacets()
				if err != nil {
					return err
				}
				fmap := topo.IndexMap(topo.Dim() - 1)
				ownedIface := 0
				for _, f := range iface {
					if f < fmap.SizeLocal() {
						ownedIface++
					}
				}
				extTotal := c.AllReduce(int64(len(ext)), comm.OpSum)
				ifaceTotal := c.AllReduce(int64(ownedIface), comm.OpSum)

				owned := make([]int32, topo.IndexMap(topo.Dim()).SizeLocal())
				for i := range owned {
					owned[i] = int32(i)
				}
				vols, err := mesh.CellVolumes(m, owned)
				if err != nil {
					return err
				}
				var vol float64
				for _, v := range vols {
					vol += v
				}
				volSend := make([][]float64, c.Size())
				volSend[0] = []float64{vol}
				volAll, err := c.AllToAllFloats(volSend)
				if err != nil {
					return err
				}

				if c.Rank() != 0 {
					return nil
				}
				var volTotal float64
				for _, buf := range volAll {
					for _, v := range buf {
						volTotal += v
					}
				}
				cmd.Printf("cell type:        %s\n", topo.CellType())
				cmd.Printf("ghost mode:       %s\n", mode)
				cmd.Printf("ranks:            %d\n", c.Size())
				cmd.Printf("vertices:         %d\n", topo.IndexMap(0).SizeGlobal())
				cmd.Printf("edges:            %d\n", topo.IndexMap(1).SizeGlobal())
				cmd.Printf("facets:           %d\n", topo.IndexMap(topo.Dim()-1).SizeGlobal())
				cmd.Printf("cells:            %d\n", topo.IndexMap(topo.Dim()).SizeGlobal())
				cmd.Printf("exterior facets:  %d\n", extTotal)
				cmd.Printf("interface facets: %d\n", ifaceTotal)
				cmd.Printf("total volume:     %.6g\n", volTotal)
				return nil
			})
		},
	}
}

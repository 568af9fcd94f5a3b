package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/meshkernel/graph"
	"github.com/notargets/meshkernel/mesh"
)

// config collects the settings shared by all subcommands. A TOML file
// given with --config fills in whatever the flags leave untouched.
type config struct {
	Ranks     int    `toml:"ranks"`
	GhostMode string `toml:"ghost_mode"`
	Strategy  string `toml:"strategy"`
	Verbose   bool   `toml:"verbose"`
}

func rootCmd() *cobra.Command {
	cfg := config{Ranks: 1, GhostMode: "none", Strategy: "greedy"}
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "meshref",
		Short: "Distributed tetrahedral mesh toolkit",
		Long: `meshref reads a tetrahedral mesh, spreads it over a simulated
multi-rank world, and can report its entity counts, partition it, or
refine it by edge subdivision.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgPath == "" {
				return nil
			}
			var fc config
			if _, err := toml.DecodeFile(cfgPath, &fc); err != nil {
				return fmt.Errorf("load config %s: %w", cfgPath, err)
			}
			flags := cmd.Root().PersistentFlags()
			if fc.Ranks > 0 && !flags.Changed("ranks") {
				cfg.Ranks = fc.Ranks
			}
			if fc.GhostMode != "" && !flags.Changed("ghost-mode") {
				cfg.GhostMode = fc.GhostMode
			}
			if fc.Strategy != "" && !flags.Changed("strategy") {
				cfg.Strategy = fc.Strategy
			}
			if fc.Verbose && !flags.Changed("verbose") {
				cfg.Verbose = true
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "TOML config file")
	pf.IntVarP(&cfg.Ranks, "ranks", "n", cfg.Ranks, "ranks to simulate")
	pf.StringVar(&cfg.GhostMode, "ghost-mode", cfg.GhostMode, "ghost mode: none or shared_facet")
	pf.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "partition strategy: block, greedy, or keep")
	pf.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging")
	cmd.AddCommand(infoCmd(&cfg), partitionCmd(&cfg), refineCmd(&cfg))
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zc.Build()
}

func ghostMode(name string) (mesh.GhostMode, error) {
	switch name {
	case "none", "":
		return mesh.GhostNone, nil
	case "shared_facet":
		return mesh.GhostSharedFacet, nil
	}
	return 0, fmt.Errorf("unknown ghost mode %q", name)
}

func strategyFunc(name string) (graph.PartitionFunc, error) {
	switch name {
	case "block":
		return graph.BlockPartition, nil
	case "greedy", "":
		return graph.GreedyPartition, nil
	case "keep":
		return graph.KeepPartition, nil
	}
	return nil, fmt.Errorf("unknown partition strategy %q", name)
}

// readCells loads a mesh file and reduces it to linear tetrahedral
// topology with vertex ids and coordinates.
func readCells(path string) (*graph.Adjacency64, []int64, []float64, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	rows := make([][]int64, len(msh.EtoV))
	for i, ev := range msh.EtoV {
		row := make([]int64, len(ev))
		for j, v := range ev {
			row[j] = int64(v)
		}
		rows[i] = row
	}
	cells, err := mesh.ExtractTopology(mesh.Tetrahedron, nil, graph.NewAdjacency64(rows))
	if err != nil {
		return nil, nil, nil, err
	}
	ids := make([]int64, len(msh.Vertices))
	x := make([]float64, 0, len(ids)*3)
	for i, v := range msh.Vertices {
		ids[i] = int64(i)
		x = append(x, v[0], v[1], v[2])
	}
	return cells, ids, x, nil
}

// rankInput hands the whole mesh to rank 0 and empty shares to the
// rest; mesh.Create redistributes from there.
func rankInput(rank int, cells *graph.Adjacency64, ids []int64,
	x []float64) (*graph.Adjacency64, []int64, []float64) {
	if rank == 0 {
		return cells, ids, x
	}
	return graph.NewAdjacency64(nil), nil, nil
}

// Command meshref inspects, partitions and refines tetrahedral meshes
// across a simulated multi-rank world.
package main

import "os"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

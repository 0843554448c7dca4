// Command swarmcp-server runs the SwarmCP control plane.
package main

import (
	"os"

	"swarmcp.io/server/cmd/swarmcp-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

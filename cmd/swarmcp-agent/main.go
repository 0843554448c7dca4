package main

import (
	"os"

	"swarmcp.io/cmd/swarmcp-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

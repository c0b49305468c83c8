package main

import (
	"fmt"
	"os"

	"github.com/iudanet/syncspace/cmd/server/commands"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	commands.SetVersionInfo(Version, GitCommit, BuildDate)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command openad runs the RXN and Deep Search plugin commands.
package main

import (
	"os"

	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/cli"
)

// Set through -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command meshsim spins up a population of in-process Coordinators over
// a shared loopback radio to demonstrate election, membership and
// liveness end to end without any real hardware.
//
// Grounded on rmacdonaldsmith-eventmesh-go's cmd/eventmesh-cli (cobra
// root command with persistent flags and subcommands) generalized from
// an HTTP client CLI to a simulation driver.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	root := &cobra.Command{
		Use:   "meshsim",
		Short: "Simulate a meshlink gateway/node population over a loopback radio",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console|json")

	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

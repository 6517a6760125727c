// Command changeintelctl is the operator CLI for the change intelligence
// engine: seeding topology from a file, and running an ad hoc metrics
// roll-up outside the server's periodic schedule.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "changeintelctl",
	Short: "Operator CLI for the change intelligence engine",
}

func init() {
	rootCmd.AddCommand(seedCmd, rollupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rtctl",
	Short: "Tools for the realtime gateway",
	Long: `rtctl issues session tokens signed with the gateway secret and
publishes events onto the gateway's broker.

Flag defaults come from the same RT_* environment variables the gateway reads.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(publishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

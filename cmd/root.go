// Package cmd holds the campuskv command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campuskv",
	Short: "Shared key-value store for the school administration app",
	Long: `CampusKV is the shared key-value store behind the school
administration application. It serves one logical table of (key, JSON value)
rows over HTTP and pushes row changes to subscribed contexts over WebSocket.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(addUserCmd)
}

package main

import (
	"github.com/spf13/cobra"
)

var allocationsCmd = &cobra.Command{
	Use:   "allocations",
	Short: "Print the effective thread allocations map",
	RunE:  runAllocations,
}

func init() {
	rootCmd.AddCommand(allocationsCmd)
}

func runAllocations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	printAllocations(cmd, cfg.ThreadAllocations())
	return nil
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Swind/go-task-scheduler/config"
	"github.com/Swind/go-task-scheduler/core"
)

var rootCmd = &cobra.Command{
	Use:   "tasksched",
	Short: "Priority-aware task scheduler playground",
	Long: `tasksched drives a TasksScheduler from a YAML config: it can print the
effective thread allocations or run a simulated workload against them.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "scheduler config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix("TASKSCHED")
	// TASKSCHED_LOG_LEVEL for log_level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the file named by --config (or TASKSCHED_CONFIG) and applies the
// log level override.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func newLogger(cfg config.Config) core.Logger {
	return core.NewConsoleLogger(os.Stderr, cfg.LogLevel)
}

func printAllocations(cmd *cobra.Command, allocations core.ThreadAllocationsMap) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-12s %-14s %s\n", "THRESHOLD", "NAME", "SLOTS")
	for _, tier := range allocations {
		fmt.Fprintf(out, "%-12d %-14s %d\n", tier.Threshold, priorityName(tier.Threshold), tier.Slots)
	}
	fmt.Fprintf(out, "threads: %d\n", core.ComputeThreadsCount(allocations))
}

func priorityName(p core.TaskPriority) string {
	switch p {
	case core.TaskPriorityBestEffort:
		return "best-effort"
	case core.TaskPriorityUserVisible:
		return "user-visible"
	case core.TaskPriorityUserBlocking:
		return "user-blocking"
	case core.TaskPriorityMax:
		return "max"
	default:
		return "-"
	}
}

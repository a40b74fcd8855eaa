package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/taskboard/config"
)

var (
	cfgPath string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard event services",
	Long:  `Event-driven services for task lifecycle propagation: audit trail, recurring tasks, reminders and notifications`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "path to the configuration directory")
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}

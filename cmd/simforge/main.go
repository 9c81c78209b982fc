package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/simforge/pkg/config"
	"github.com/cuemby/simforge/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "simforge",
	Short: "simforge - discrete-event simulator of workflow execution on distributed infrastructure",
	Long: `simforge drives a virtual clock over a scenario of hosts, disks,
storage/proxy/batch services, and jobs, producing a durable trace of
everything that happened without ever touching real I/O, real compute,
or wall-clock time.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("simforge version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringSlice("log", nil, "Per-category log threshold, category.threshold=level (repeatable)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(traceCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})

	logFlags, _ := rootCmd.PersistentFlags().GetStringSlice("log")
	if err := config.ApplyLogFlags(logFlags); err != nil {
		log.Errorf("invalid --log flag", err)
	}
}

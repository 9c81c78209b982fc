package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/simforge/pkg/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect a trace journal produced by a previous run",
}

var traceDumpCmd = &cobra.Command{
	Use:   "dump <run.db>",
	Short: "Print every record of a run's trace journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceDump,
}

func init() {
	traceDumpCmd.Flags().String("run-id", "", "Dump only this run (defaults to every run in the file)")
	traceCmd.AddCommand(traceDumpCmd)
}

func runTraceDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	runID, _ := cmd.Flags().GetString("run-id")

	r, err := trace.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open trace journal: %w", err)
	}
	defer r.Close()

	runIDs := []string{runID}
	if runID == "" {
		runIDs, err = r.Runs()
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
	}

	for _, id := range runIDs {
		records, err := r.Records(id)
		if err != nil {
			return fmt.Errorf("run %q: %w", id, err)
		}
		for _, rec := range records {
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", id, line)
		}
	}
	return nil
}

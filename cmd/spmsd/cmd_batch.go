package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file> [mode]",
	Short: "Replay a batch file and print the booking report",
	Long: "Load every command from the file as addBatch would, then run printBookings with the given mode " +
		"(fcfs, prio or ALL; default ALL) and exit.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	mode := "ALL"
	if len(args) == 2 {
		mode = args[1]
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	for _, line := range []string{
		fmt.Sprintf("addBatch -%s;", args[0]),
		fmt.Sprintf("printBookings -%s;", mode),
	} {
		reply, err := a.session.Execute(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply.Message)
		if reply.Invalid {
			return fmt.Errorf("%s rejected: %s", line, reply.Message)
		}
	}

	fmt.Fprintf(out, "report written to %s (%d invalid request(s))\n", a.report.Path(), a.session.InvalidCount())
	return nil
}

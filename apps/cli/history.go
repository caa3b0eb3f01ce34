package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

func (cli *commandLine) history(ctx context.Context, args []string) error {
	fs := cli.newFlagSet("history")
	limit := fs.Int("limit", 20, "Number of runs to show.")
	runID := fs.String("run", "", "Show the outcomes of this run.")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	store, closeStore, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	if *runID != "" {
		outcomes, err := store.RunOutcomes(ctx, *runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ROW\tSTUDENT\tNAME\tSTATUS\tREASON")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", o.Index+1, o.StudentID, o.DisplayName, o.Status, o.Reason)
		}
		return w.Flush()
	}

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN\tSTARTED\tACCOUNT\tTOTAL\tSUCCESS\tFAILED\tSTATE")
	for _, r := range runs {
		state := "finished"
		switch {
		case !r.Finished():
			state = "running"
		case r.Stopped:
			state = "stopped"
		}
		if r.DryRun {
			state += " (dry run)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.RFC822), r.Account, r.Total, r.SuccessCount, r.FailureCount, state)
	}
	return w.Flush()
}

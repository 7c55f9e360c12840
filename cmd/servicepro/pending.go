package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deltadent/ServicePro-sub000/internal/control"
)

var pendingJob string

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List queued actions in replay order",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	pendingCmd.Flags().StringVar(&pendingJob, "job", "", "only show actions for this job")
}

func runPending(cmd *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.ListPending(ctx, &control.ListPendingRequest{JobID: pendingJob})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, resp)
	}
	if pendingJob != "" {
		fmt.Fprintf(out, "Job %s: %d pending\n", pendingJob, resp.Count)
		if resp.Count == 0 {
			return nil
		}
	} else if len(resp.Items) == 0 {
		fmt.Fprintln(out, "Queue is empty.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tTYPE\tJOB\tQUEUED")
	for _, it := range resp.Items {
		job := it.JobID
		if job == "" {
			job = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.Type, job, it.Timestamp.Local().Format(time.DateTime))
	}
	return w.Flush()
}

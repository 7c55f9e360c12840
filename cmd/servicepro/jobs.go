package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deltadent/ServicePro-sub000/internal/control"
)

var jobsReq control.ListJobsRequest

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs from the backend, or from the local cache when offline",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

func init() {
	f := jobsCmd.Flags()
	f.StringVar(&jobsReq.TechnicianID, "technician", "", "filter by assigned technician")
	f.StringVar(&jobsReq.CustomerID, "customer", "", "filter by customer")
	f.StringSliceVar(&jobsReq.Status, "status", nil, "filter by status (repeatable)")
	f.StringVar(&jobsReq.From, "from", "", "scheduled at or after (RFC 3339)")
	f.StringVar(&jobsReq.To, "to", "", "scheduled at or before (RFC 3339)")
	f.IntVar(&jobsReq.Limit, "limit", 0, "maximum number of jobs")
	f.IntVar(&jobsReq.Offset, "offset", 0, "skip this many jobs")
}

func runJobs(cmd *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.ListJobs(ctx, &jobsReq)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, resp)
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tSTATUS\tSCHEDULED\tTITLE")
	for _, j := range resp.Jobs {
		scheduled := "-"
		if j.ScheduledAt != nil {
			scheduled = *j.ScheduledAt
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Status, scheduled, j.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	source := "backend"
	if resp.FromCache {
		source = "local cache"
	}
	fmt.Fprintf(out, "\n%d of %d jobs (%s)\n", len(resp.Jobs), resp.Count, source)
	return nil
}

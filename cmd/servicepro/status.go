package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/deltadent/ServicePro-sub000/internal/control"
	intsync "github.com/deltadent/ServicePro-sub000/internal/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue depth and the last sync",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Status(ctx)
	if err != nil {
		return err
	}
	health, err := c.BackendHealth(ctx)
	if err != nil {
		health = healthpb.HealthCheckResponse_UNKNOWN
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, struct {
			*control.StatusResponse
			Health string `json:"health"`
		}{resp, health.String()})
	}

	fmt.Fprintf(out, "Profile:      %s\n", resp.Profile)
	fmt.Fprintf(out, "Connectivity: %s (%s)\n", resp.Connectivity, health)
	fmt.Fprintf(out, "Syncing:      %v\n", resp.Syncing)
	fmt.Fprintf(out, "Pending:      %d\n", resp.Pending)
	if resp.LastOnlineAt != "" {
		fmt.Fprintf(out, "Last online:  %s\n", resp.LastOnlineAt)
	}
	if resp.LastSyncAt != nil {
		fmt.Fprintf(out, "Last sync:    %s\n", resp.LastSyncAt.Local().Format(time.DateTime))
	}
	if resp.LastResult != nil {
		printResult(cmd, *resp.LastResult)
	}
	fmt.Fprintf(out, "Uptime:       %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	if resp.Dropped > 0 {
		fmt.Fprintf(out, "Dropped:      %d events\n", resp.Dropped)
	}
	return nil
}

func printResult(cmd *cobra.Command, r intsync.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Result:       success=%v processed=%d failed=%d\n", r.Success, r.Processed, r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}

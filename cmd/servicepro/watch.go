package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/deltadent/ServicePro-sub000/internal/control"
)

var watchNamespaces []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream sync and connectivity events until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchNamespaces, "ns", nil, "event namespaces to follow (default sync. and connectivity.)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream, err := c.WatchSync(ctx, &control.WatchRequest{Namespaces: watchNamespaces})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(out, evt); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%s  %-28s %s\n", evt.OccurredAt.Local().Format("15:04:05.000"), evt.Kind, evt.Payload)
	}
}

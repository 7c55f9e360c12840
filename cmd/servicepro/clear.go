package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop every cached entity and every queued action",
	Args:  cobra.NoArgs,
	RunE:  runClearCache,
}

func init() {
	clearCacheCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm that queued actions will be lost")
}

func runClearCache(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		return fmt.Errorf("clear-cache discards unsynced actions; rerun with --yes")
	}
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	if err := c.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Local cache and queue cleared.")
	return nil
}

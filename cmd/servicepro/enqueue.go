package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deltadent/ServicePro-sub000/internal/action"
	"github.com/deltadent/ServicePro-sub000/internal/control"
)

var queueOnly bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <type> <payload>",
	Short: "Submit a field action (applied now when online, queued otherwise)",
	Long: `Submit a field action to the daemon.

<type> is one of NOTE, PHOTO, CHECK, QUOTE_CREATE, QUOTE_UPDATE,
QUOTE_APPROVE, QUOTE_DECLINE or QUOTE_SEND. <payload> is inline JSON,
@path to read it from a file, or - to read it from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().BoolVar(&queueOnly, "queue-only", false, "queue even when the backend is reachable")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	typ, err := action.ParseType(strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	payload, err := readPayload(args[1], cmd.InOrStdin())
	if err != nil {
		return err
	}

	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Submit(ctx, &control.SubmitRequest{Type: typ, Payload: payload, QueueOnly: queueOnly})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, resp.Outcome)
	}
	switch {
	case resp.Outcome.Applied != nil:
		fmt.Fprintf(out, "Applied %s %s\n", typ, resp.Outcome.Applied.ID)
	case resp.Outcome.Queued != nil:
		fmt.Fprintf(out, "Queued %s as %s\n", typ, resp.Outcome.Queued.ID)
	}
	return nil
}

// readPayload resolves an inline, @file or stdin payload and checks that it
// is a JSON object.
func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	var err error
	switch {
	case arg == "-":
		raw, err = io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		raw, err = os.ReadFile(arg[1:])
	default:
		raw = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return json.RawMessage(raw), nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewOperationCmd создаёт группу команд для управления операциями.
func NewOperationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "op",
		Aliases: []string{"operation"},
		Short:   "Manage operations",
	}

	cmd.AddCommand(
		newOperationListCmd(clientFn, outputFn),
		newOperationShowCmd(clientFn, outputFn),
		newOperationAbortCmd(clientFn, outputFn),
		newOperationResumeCmd(clientFn, outputFn),
		newOperationLogsCmd(clientFn, outputFn),
	)

	return cmd
}

func operationRow(op OperationResponse) []string {
	return []string{op.ID, op.Type, op.MTAID, op.Namespace, op.State, op.StartedAt}
}

var operationHeaders = []string{"ID", "TYPE", "MTA_ID", "NAMESPACE", "STATE", "STARTED"}

func newOperationListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var mtaID string
	var spaceID string
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ops, err := client.ListOperations(ListOperationsOpts{
				MTAID:   mtaID,
				SpaceID: spaceID,
				State:   state,
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(ops))
			for i, op := range ops {
				rows[i] = operationRow(op)
			}
			out.Print(operationHeaders, rows, ops)
			return nil
		},
	}

	cmd.Flags().StringVar(&mtaID, "mta", "", "Filter by MTA ID")
	cmd.Flags().StringVar(&spaceID, "space", "", "Filter by space GUID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (RUNNING, FINISHED, ERROR, ABORTED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newOperationShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show operation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			op, err := client.GetOperation(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TYPE", "MTA_ID", "STATE", "ERROR", "STARTED", "ENDED"},
				[][]string{{op.ID, op.Type, op.MTAID, op.State, op.Error, op.StartedAt, op.EndedAt}},
				op,
			)
			return nil
		},
	}
}

func newOperationAbortCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "abort ID",
		Short: "Request cooperative abort of a running operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.AbortOperation(args[0]); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Abort requested for operation %s", args[0]))
			return nil
		},
	}
}

func newOperationResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "resume ID",
		Short: "Resume an operation from ERROR state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			op, err := client.ResumeOperation(args[0])
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Operation resumed: %s", op.ID))

			if wait {
				return tailOperation(client, out, op.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Tail progress until the operation finishes")
	return cmd
}

func newOperationLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs ID",
		Short: "Show operation progress messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if follow {
				return tailOperation(client, out, args[0])
			}

			msgs, err := client.ListMessages(args[0], 0)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				out.Message(m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Keep tailing until the operation finishes")
	return cmd
}

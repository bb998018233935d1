package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const tailInterval = 3 * time.Second

// deployOpts — общие флаги команд запуска операций.
type deployOpts struct {
	file      string
	orgID     string
	spaceID   string
	namespace string
	user      string
	noWait    bool
}

func (o *deployOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.file, "file", "f", "mtad.yaml", "Deployment descriptor path")
	cmd.Flags().StringVar(&o.orgID, "org", "", "Target organization GUID (required)")
	cmd.Flags().StringVar(&o.spaceID, "space", "", "Target space GUID (required)")
	cmd.Flags().StringVar(&o.namespace, "namespace", "", "Deployment namespace")
	cmd.Flags().StringVar(&o.user, "user", "", "User starting the operation")
	cmd.Flags().BoolVar(&o.noWait, "no-wait", false, "Start the operation and exit without tailing progress")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("space")
}

// NewDeployCmd создаёт команду deploy.
func NewDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newStartCmd("deploy", "Deploy an MTA", "DEPLOY", clientFn, outputFn)
}

// NewBlueGreenDeployCmd создаёт команду bg-deploy.
func NewBlueGreenDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newStartCmd("bg-deploy", "Deploy an MTA with zero downtime", "BLUE_GREEN_DEPLOY", clientFn, outputFn)
}

// NewUndeployCmd создаёт команду undeploy.
func NewUndeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newStartCmd("undeploy", "Undeploy an MTA", "UNDEPLOY", clientFn, outputFn)
}

// NewRollbackCmd создаёт команду rollback.
func NewRollbackCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newStartCmd("rollback", "Roll an MTA back to the previous version", "ROLLBACK_MTA", clientFn, outputFn)
}

func newStartCmd(use, short, opType string, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts deployOpts

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			descriptor, err := os.ReadFile(opts.file)
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}

			op, err := client.StartOperation(StartOperationRequest{
				Type:       opType,
				OrgID:      opts.orgID,
				SpaceID:    opts.spaceID,
				Namespace:  opts.namespace,
				User:       opts.user,
				Descriptor: string(descriptor),
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Operation started: %s", op.ID))
			if opts.noWait {
				return nil
			}
			return tailOperation(client, out, op.ID)
		},
	}

	opts.register(cmd)
	return cmd
}

// tailOperation следит за операцией до терминального статуса,
// печатая новые progress-сообщения по мере их появления.
func tailOperation(client *Client, out *Output, id string) error {
	var after int64

	for {
		msgs, err := client.ListMessages(id, after)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			out.Message(m)
			after = m.ID
		}

		op, err := client.GetOperation(id)
		if err != nil {
			return err
		}

		switch op.State {
		case "FINISHED":
			out.Success("Operation finished")
			return nil
		case "ABORTED":
			return fmt.Errorf("operation %s was aborted", id)
		case "ERROR":
			return fmt.Errorf("operation %s failed: %s (resume with: convoy op resume %s)", id, op.Error, id)
		}

		time.Sleep(tailInterval)
	}
}

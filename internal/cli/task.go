package cli

import (
	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для просмотра tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect tasks",
	}

	cmd.AddCommand(newTaskListCmd(clientFn, outputFn))

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var orderID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(ListTasksOpts{
				OrderID: orderID,
				Status:  status,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			printTasks(outputFn(), tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&orderID, "order-id", "", "Filter by order ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, READY, RUNNING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

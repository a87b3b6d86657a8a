package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для управления заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
	}

	cmd.AddCommand(
		newOrderListCmd(clientFn, outputFn),
		newOrderCreateCmd(clientFn, outputFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderStartCmd(clientFn, outputFn),
		newOrderStatusCmd(clientFn, outputFn),
		newOrderTasksCmd(clientFn, outputFn),
		newOrderWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func orderRow(o OrderResponse) []string {
	return []string{o.OrderID, o.OrderType, o.CustomerID, o.Status, o.CreatedAt}
}

var orderHeaders = []string{"ORDER_ID", "TYPE", "CUSTOMER", "STATUS", "CREATED"}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var customerID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListOrders(ListOrdersOpts{
				Status:     status,
				CustomerID: customerID,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = orderRow(o)
			}

			out.Print(orderHeaders, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (CREATED, IN_PROGRESS, COMPLETED, FAILED)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Filter by customer ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newOrderCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var orderType string
	var customerID string
	var customerName string
	var services []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			items, err := parseServices(services)
			if err != nil {
				return err
			}

			order, err := client.CreateOrder(CreateOrderRequest{
				OrderType:    strings.ToUpper(orderType),
				CustomerID:   customerID,
				CustomerName: customerName,
				Services:     items,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order created: %s", order.OrderID))
			out.Print(orderHeaders, [][]string{orderRow(*order)}, order)
			return nil
		},
	}

	cmd.Flags().StringVar(&orderType, "type", "INSTALL", "Order type (INSTALL, CHANGE, DISCONNECT)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Customer ID")
	cmd.Flags().StringVar(&customerName, "name", "", "Customer name")
	cmd.Flags().StringSliceVar(&services, "service", nil, "Service as TYPE[:SPEED] (repeatable)")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}

// parseServices разбирает значения вида TYPE[:SPEED].
func parseServices(values []string) ([]ServiceItem, error) {
	items := make([]ServiceItem, 0, len(values))
	for _, v := range values {
		typ, speed, _ := strings.Cut(v, ":")
		if strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("invalid service format %q, expected TYPE[:SPEED]", v)
		}
		items = append(items, ServiceItem{Type: typ, Speed: speed})
	}
	return items, nil
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ORDER_ID",
		Short: "Show order details and task progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			progress := "-"
			if p := order.Progress; p != nil && p.Total > 0 {
				progress = fmt.Sprintf("%d/%d (%d%%)", p.Completed, p.Total, p.Percent)
			}

			out.Print(
				[]string{"ORDER_ID", "TYPE", "CUSTOMER", "STATUS", "PROGRESS", "FAILURE", "UPDATED"},
				[][]string{{order.OrderID, order.OrderType, order.CustomerID, order.Status, progress, order.FailureReason, order.UpdatedAt}},
				order,
			)
			return nil
		},
	}
}

func newOrderStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start ORDER_ID",
		Short: "Move order to IN_PROGRESS and start its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(clientFn(), outputFn(), args[0], TransitionRequest{Status: "IN_PROGRESS"})
		},
	}
}

func newOrderStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "status ORDER_ID STATUS",
		Short: "Change order status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(clientFn(), outputFn(), args[0], TransitionRequest{
				Status:        strings.ToUpper(args[1]),
				FailureReason: reason,
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason (for FAILED)")

	return cmd
}

func transition(client *Client, out *Output, orderID string, req TransitionRequest) error {
	order, err := client.TransitionOrder(orderID, req)
	if err != nil {
		return err
	}

	out.Success(fmt.Sprintf("Order %s is now %s", order.OrderID, order.Status))
	out.Print(orderHeaders, [][]string{orderRow(*order)}, order)
	return nil
}

func newOrderTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks ORDER_ID",
		Short: "List tasks of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListOrderTasks(args[0])
			if err != nil {
				return err
			}
			printTasks(outputFn(), tasks)
			return nil
		},
	}
}

func newOrderWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [ORDER_ID]",
		Short: "Stream order and task updates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var orderID string
			if len(args) == 1 {
				orderID = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return clientFn().Watch(ctx, func(e Event) error {
				if orderID != "" && e.Data.OrderID != orderID {
					return nil
				}
				if out.jsonMode {
					out.JSON(e)
					return nil
				}
				out.Line(formatEvent(e))
				return nil
			})
		},
	}
}

func formatEvent(e Event) string {
	if e.Data.TaskID != "" {
		return fmt.Sprintf("%-14s %s  %s  %s", e.Event, e.Data.OrderID, e.Data.TaskID, e.Data.Status)
	}
	return fmt.Sprintf("%-14s %s", e.Event, e.Data.OrderID)
}

func printTasks(out *Output, tasks []TaskResponse) {
	headers := []string{"TASK_ID", "TYPE", "STATUS", "DEPENDS_ON", "RETRIES", "ERROR"}
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		deps := strings.Join(t.DependsOn, ",")
		if deps == "" {
			deps = "-"
		}
		rows[i] = []string{
			t.TaskID,
			t.TaskType,
			t.Status,
			deps,
			strconv.Itoa(t.RetryCount) + "/" + strconv.Itoa(t.MaxRetries),
			t.ErrorMessage(),
		}
	}
	out.Print(headers, rows, tasks)
}

package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(storeFn func() (*Store, error), brokerFn func() (*mq.Connection, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(storeFn, outputFn),
		newWorkflowShowCmd(storeFn, outputFn),
		newWorkflowStepsCmd(storeFn, outputFn),
		newWorkflowStartCmd(storeFn, brokerFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(storeFn func() (*Store, error), outputFn func() *Output) *cobra.Command {
	var status string
	var clientID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()
			out := outputFn()

			var workflows []domain.Workflow
			switch {
			case status != "":
				workflows, err = store.Workflows.ListByStatus(cmd.Context(), domain.WorkflowStatus(status), limit)
			case clientID != 0:
				workflows, err = store.Workflows.ListByClient(cmd.Context(), clientID, limit)
			default:
				workflows, err = store.Workflows.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "STATUS", "CLIENT_ID", "CREATED"}
			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = []string{
					strconv.FormatInt(wf.ID, 10),
					string(wf.Kind),
					string(wf.Status),
					strconv.FormatInt(wf.ClientID, 10),
					wf.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (inProgress, completed, failed, completelyFailed)")
	cmd.Flags().Int64Var(&clientID, "client-id", 0, "Filter by client ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newWorkflowShowCmd(storeFn func() (*Store, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a workflow with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid workflow id %q", args[0])
			}

			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()
			out := outputFn()

			wf, err := store.Workflows.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			steps, err := store.Steps.ListByWorkflow(cmd.Context(), id)
			if err != nil {
				return err
			}

			out.JSON(map[string]any{
				"workflow": wf,
				"steps":    steps,
			})
			return nil
		},
	}
}

func newWorkflowStepsCmd(storeFn func() (*Store, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps ID",
		Short: "List steps of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid workflow id %q", args[0])
			}

			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()
			out := outputFn()

			steps, err := store.Steps.ListByWorkflow(cmd.Context(), id)
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "STATUS", "ERROR", "UPDATED"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					strconv.FormatInt(s.ID, 10),
					string(s.Kind),
					string(s.Status),
					s.Error,
					s.UpdatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, steps)
			return nil
		},
	}
}

func newWorkflowStartCmd(storeFn func() (*Store, error), brokerFn func() (*mq.Connection, error), outputFn func() *Output) *cobra.Command {
	var clientID int64
	var params []string

	cmd := &cobra.Command{
		Use:   "start KIND",
		Short: "Start a new workflow",
		Long: `Start a new workflow of the given kind: create the workflow row
and publish the init task message to the kind's topic.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.Kind(args[0])
			graphs := graph.DefaultRegistry()
			g, err := graphs.ForKind(kind)
			if err != nil {
				return err
			}

			requestParams := make(map[string]any)
			for _, kv := range params {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
				}
				requestParams[parts[0]] = parts[1]
			}

			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()

			conn, err := brokerFn()
			if err != nil {
				return err
			}
			defer conn.Close()

			out := outputFn()

			now := time.Now()
			wf := &domain.Workflow{
				Kind:          kind,
				Status:        domain.WorkflowStatusInProgress,
				ClientID:      clientID,
				RequestParams: requestParams,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := store.Workflows.Create(cmd.Context(), wf); err != nil {
				return err
			}

			if err := mq.SetupTopology(cmd.Context(), conn, []string{g.Topic()}); err != nil {
				return err
			}

			publisher := mq.NewPublisher(conn, slog.Default())
			msg := mq.NewTaskMessage(wf.ID, wf.Kind, g.Init, g.Topic())
			msg.ClientID = clientID
			msg.RequestParams = requestParams
			if err := publisher.PublishTask(cmd.Context(), msg); err != nil {
				return err
			}

			out.Success("workflow %d (%s) started", wf.ID, kind)
			out.JSON(wf)
			return nil
		},
	}

	cmd.Flags().Int64Var(&clientID, "client-id", 0, "Owning client ID")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Request parameter KEY=VALUE (repeatable)")

	return cmd
}

package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Chainflow/internal/mq"
)

// NewCronProcessCmd создаёт группу команд для реестра consumer-процессов.
func NewCronProcessCmd(storeFn func() (*Store, error), brokerFn func() (*mq.Connection, error), outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron-process",
		Short: "Manage the consumer process registry",
	}

	cmd.AddCommand(
		newCronProcessListCmd(storeFn, outputFn),
		newCronProcessStopCmd(storeFn, outputFn),
		newCommandCmd("shutdown", mq.CommandShutdown, "Request graceful shutdown of consumer processes", brokerFn, outputFn),
		newCommandCmd("pause", mq.CommandPause, "Pause task consumption", brokerFn, outputFn),
		newCommandCmd("resume", mq.CommandResume, "Resume task consumption after pause", brokerFn, outputFn),
	)

	return cmd
}

func newCronProcessListCmd(storeFn func() (*Store, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered consumer processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()
			out := outputFn()

			procs, err := store.CronProcesses.List(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "CHAIN_ID", "IP", "STATUS", "STARTED", "ENDED"}
			rows := make([][]string, len(procs))
			for i, p := range procs {
				started, ended := "", ""
				if p.LastStartedAt != nil {
					started = p.LastStartedAt.Format(time.RFC3339)
				}
				if p.LastEndedAt != nil {
					ended = p.LastEndedAt.Format(time.RFC3339)
				}
				rows[i] = []string{
					strconv.FormatInt(p.ID, 10),
					string(p.Kind),
					strconv.FormatInt(p.ChainID, 10),
					p.IP,
					string(p.Status),
					started,
					ended,
				}
			}

			out.Print(headers, rows, procs)
			return nil
		},
	}
}

func newCronProcessStopCmd(storeFn func() (*Store, error), outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Mark a process row stopped",
		Long: `Mark a registry row stopped. Use for rows left running by a
crashed process; a live process should be stopped with the shutdown
command instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid process id %q", args[0])
			}

			store, err := storeFn()
			if err != nil {
				return err
			}
			defer store.Close()
			out := outputFn()

			if err := store.CronProcesses.StopProcess(cmd.Context(), id); err != nil {
				return err
			}

			out.Success("cron process %d marked stopped", id)
			return nil
		},
	}
}

// newCommandCmd создаёт команду, публикующую внеполосное сообщение
// consumer-процессам. Без --consumer-tag реагируют все процессы.
func newCommandCmd(use string, kind mq.CommandKind, short string, brokerFn func() (*mq.Connection, error), outputFn func() *Output) *cobra.Command {
	var consumerTag string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := brokerFn()
			if err != nil {
				return err
			}
			defer conn.Close()
			out := outputFn()

			publisher := mq.NewPublisher(conn, slog.Default())
			err = publisher.PublishCommand(cmd.Context(), &mq.CommandMessage{
				Kind:        kind,
				ConsumerTag: consumerTag,
			})
			if err != nil {
				return err
			}

			out.Success("%s command published", kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&consumerTag, "consumer-tag", "", "Address a single consumer by tag")

	return cmd
}

// Chainflow CLI — операционная утилита: запуск workflow, просмотр
// их состояния и управление реестром consumer-процессов.
//
// Использование:
//
//	chainflow [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow      Управление workflows
//	cron-process  Реестр consumer-процессов
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Chainflow/internal/cli"
	"github.com/shaiso/Chainflow/internal/mq"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "chainflow",
		Short:         "Chainflow CLI — workflow orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	storeFn := func() (*cli.Store, error) { return cli.NewStore(context.Background()) }
	brokerFn := func() (*mq.Connection, error) { return cli.NewBroker() }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(storeFn, brokerFn, outputFn),
		cli.NewCronProcessCmd(storeFn, brokerFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

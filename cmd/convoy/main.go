// Convoy CLI — инструмент командной строки для деплоя MTA
// и наблюдения за операциями через HTTP API.
//
// Использование:
//
//	convoy [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	deploy     Деплой MTA из дескриптора
//	bg-deploy  Blue-green деплой
//	undeploy   Удаление MTA
//	rollback   Откат MTA на предыдущую версию
//	op         Управление операциями
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Convoy/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "convoy",
		Short:         "Convoy CLI — MTA deployment tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDeployCmd(clientFn, outputFn),
		cli.NewBlueGreenDeployCmd(clientFn, outputFn),
		cli.NewUndeployCmd(clientFn, outputFn),
		cli.NewRollbackCmd(clientFn, outputFn),
		cli.NewOperationCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Permitflow CLI — запуск выгрузки и promote, просмотр tasks, jobs
// и stack'ов через HTTP API.
//
// Использование:
//
//	permitflow [--api-url URL] [--json] <command> [subcommand] [flags]
//
// Команды:
//
//	ingest    Выгрузка отчёта в data lake
//	promote   Перенос файла в data store
//	task      Состояние task
//	job       Состояние job
//	stack     Stack'и data store
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olmax99/dockerflaskapi/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "permitflow",
		Short:         "Permitflow CLI — permits data lake and data store pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("PERMITFLOW_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client {
		return cli.NewClient(apiURL)
	}
	outputFn := func() *cli.Output {
		return cli.NewOutput(jsonOutput)
	}

	rootCmd.AddCommand(
		cli.NewIngestCmd(clientFn, outputFn),
		cli.NewPromoteCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewStackCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

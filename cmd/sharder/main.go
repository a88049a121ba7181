// Sharder — оркестратор шардов: распределяет диапазоны шардов
// по процессам-воркерам и следит за ними.
//
// Использование:
//
//	sharder [--config FILE] run [flags]
//	sharder worker --index N
//	sharder [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run        Запустить оркестратор
//	worker     Процесс-воркер (запускается оркестратором)
//	workers    Просмотр воркеров
//	stats      Статистика
//	broadcast  Рассылка сообщения всем воркерам
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Sharder/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		configPath string
		apiURL     string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:           "sharder",
		Short:         "Sharder — shard orchestrator for multi-process bots",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8083", "Orchestrator API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newWorkerCmd(),
		cli.NewWorkersCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewBroadcastCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Unilab CLI — инструмент командной строки для управления
// компьютерными классами через HTTP API.
//
// Использование:
//
//	unilab [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	command   Отправка и просмотр команд
//	room      Просмотр аудиторий
//	computer  Просмотр компьютеров
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unilab/unilab/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "unilab",
		Short:         "Unilab CLI — classroom computer management",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewCommandCmd(clientFn, outputFn),
		cli.NewRoomCmd(clientFn, outputFn),
		cli.NewComputerCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

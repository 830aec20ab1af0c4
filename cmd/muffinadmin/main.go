// Command muffinadmin manages muffinmanager reference data from a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/cesarabad/muffinmanager/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := rootCommand().Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "muffinadmin",
		Usage:   "Manage muffinmanager reference data, users and groups",
		Version: config.Version,
		Commands: []*cli.Command{
			listCommand(),
			getCommand(),
			deleteCommand(),
			obsoleteCommand(),
			watchCommand(),
			effectiveCommand(),
			resourcesCommand(),
		},
	}
}

// Package main is the entry point of Complaint-Bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/nk521/Complaint-Bot/pkg/config"
)

const (
	configFlag  = "config"
	envFileFlag = "env-file"
)

var rootCmd = &cli.Command{
	Name:    "complaintbot",
	Usage:   "Chat bot for filing and handling complaints",
	Version: config.Version,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "Path of the TOML configuration file (overrides CONFIG_PATH)",
		},
		&cli.StringSliceFlag{
			Name:  envFileFlag,
			Usage: "Environment files to load before reading the environment",
		},
	},
	Action: runAction,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "complaintbot: %v\n", err)
		os.Exit(1)
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	boot, err := config.LoadBootstrap(cmd.StringSlice(envFileFlag)...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read environment: %v", err), 1)
	}
	if path := cmd.String(configFlag); path != "" {
		boot.ConfigPath = path
	}

	a, err := newApp(ctx, boot)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"roundify/config"
	"roundify/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "roundify",
		Short:         "Round video clip service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		if err := logger.Configure(logger.Options{
			Level:   level,
			File:    cfg.Logging.File,
			Console: cfg.Logging.Console,
		}); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(newServeCommand(loadConfig))
	rootCmd.AddCommand(newCleanupCommand(loadConfig))
	rootCmd.AddCommand(newProbeCommand(loadConfig))
	rootCmd.AddCommand(newClipCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

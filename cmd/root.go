package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursebuilder-backend/internal/app"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

var rootCmd = &cobra.Command{
	Use:           "coursebuilder",
	Short:         "Course and roadmap generation backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func modeCommand(mode app.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), mode)
		},
	}
}

func init() {
	rootCmd.AddCommand(
		modeCommand(app.ModeServe, "Run the HTTP API"),
		modeCommand(app.ModeWorker, "Run the generation worker pool"),
		modeCommand(app.ModeAll, "Run the HTTP API and worker pool in one process"),
	)
}

func run(parent context.Context, mode app.Mode) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := app.LoadConfig(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, mode, cfg)
	if err != nil {
		log.Error("Startup failed", "mode", string(mode), "error", err)
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("Exited with error", "mode", string(mode), "error", err)
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"collaborative-canvas/internal/bootstrap"
	"collaborative-canvas/internal/infra/discovery"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, configFile string

	root := &cobra.Command{
		Use:           "canvas-server",
		Short:         "Collaborative drawing canvas server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), envFile, configFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (palette, max_message_size)")

	root.AddCommand(newDiscoverCmd())
	return root
}

func runServer(ctx context.Context, envFile, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := bootstrap.LoadConfig(envFile, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	if err := app.Start(); err != nil {
		app.Shutdown()
		return err
	}

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received...")

	app.Shutdown()
	return nil
}

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List canvas servers announced on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			found := 0
			err := discovery.Browse(timeout, func(e discovery.Entry) {
				found++
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%v\n", e.Instance, e.Addr, e.Info)
			})
			if err != nil {
				return err
			}
			if found == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no canvas servers found")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to wait for announcements")
	return cmd
}

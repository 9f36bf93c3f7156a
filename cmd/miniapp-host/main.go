package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/config"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/server"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "miniapp-host",
		Short:         "Host runtime for sandboxed web mini-apps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")

	open := func(cmd *cobra.Command) (*server.Runtime, error) {
		return openRuntime(configPath)
	}

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newInstallCmd(open))
	rootCmd.AddCommand(newUninstallCmd(open))
	rootCmd.AddCommand(newAppsCmd(open))
	rootCmd.AddCommand(newManifestCmd(open))
	rootCmd.AddCommand(newPermissionsCmd(open))
	rootCmd.AddCommand(newExecCmd(open))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "miniapp-host: %v\n", err)
		os.Exit(1)
	}
}

type opener func(cmd *cobra.Command) (*server.Runtime, error)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openRuntime(configPath string) (*server.Runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	rt, err := server.Open(cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return rt, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Logger.Close()
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(rt)
			rt.Logger.Info("Mini-app host starting",
				zap.String("version", version),
				zap.String("addr", srv.Addr()),
				zap.String("data_dir", rt.Config.Storage.DataDir),
			)
			return srv.Run(ctx)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func withRuntime(open opener, cmd *cobra.Command, fn func(ctx context.Context, rt *server.Runtime) error) error {
	rt, err := open(cmd)
	if err != nil {
		return err
	}
	defer rt.Logger.Close()
	defer rt.Close()
	return fn(cmd.Context(), rt)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vehicle-hud/internal/app"
	"vehicle-hud/internal/can"
	"vehicle-hud/internal/config"
	"vehicle-hud/internal/logging"
	"vehicle-hud/internal/protocol/signals"
)

var (
	configPath string
	busType    string
	dumpAll    bool
)

var rootCmd = &cobra.Command{
	Use:   "hud",
	Short: "Gear and shift-light head-up display fed from the vehicle CAN bus",
	Long: `hud listens to the broadcast CAN traffic of the vehicle, decodes engine speed,
engaged gear and gearbox mode, and shows them on a dashboard panel.

While the engine is off the device throttles its CPU and only samples the bus.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the display service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := app.OpenDeps(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to open devices", zap.Error(err))
			return err
		}

		a, err := app.New(cfg, deps, logger)
		if err != nil {
			_ = deps.Source.Close()
			deps.Producer.Close()
			return err
		}

		logger.Info("Starting", zap.String("device", cfg.Device.ID), zap.String("bus", cfg.Bus.Type))
		if err := a.Run(ctx); err != nil {
			logger.Error("Stopped with error", zap.Error(err))
			return err
		}
		logger.Info("Shutting down...")
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Decode and print signals from the configured bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src, err := can.Open(ctx, cfg.Bus, logger.Named("can"))
		if err != nil {
			return fmt.Errorf("open bus %s: %w", cfg.Bus.Type, err)
		}
		defer src.Close()

		dec, err := signals.NewDecoder(signals.Broadcast(), logger.Named("signals"))
		if err != nil {
			return err
		}
		return app.Dump(ctx, src, dec, cmd.OutOrStdout(), dumpAll)
	},
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if busType != "" {
		cfg.Bus.Type = busType
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logging.New(cfg.Log), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Configuration file (empty for defaults)")
	rootCmd.PersistentFlags().StringVar(&busType, "bus", "", "Override bus.type (slcan, slcan-ws, socketcan, bench)")
	dumpCmd.Flags().BoolVarP(&dumpAll, "all", "a", false, "Also print frames that are not decoded")

	rootCmd.AddCommand(runCmd, dumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vehicle-hud/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "hudctl",
	Short:        "Query a running hud state server",
	SilenceUsage: true,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the state server answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.Dial(cmd.Context(), serverAddr, timeout)
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "PONG from %s in %s\n", serverAddr, time.Since(start).Round(time.Microsecond))
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current vehicle state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.Dial(cmd.Context(), serverAddr, timeout)
		if err != nil {
			return err
		}
		defer c.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		for {
			reply, err := c.State()
			if err != nil {
				return err
			}
			if err := enc.Encode(reply); err != nil {
				return err
			}
			if interval <= 0 {
				return nil
			}
			select {
			case <-cmd.Context().Done():
				return nil
			case <-time.After(interval):
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "addr", "a", "127.0.0.1:32961", "State server address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "Request timeout")
	stateCmd.Flags().DurationVarP(&interval, "watch", "w", 0, "Repeat every interval until interrupted")

	rootCmd.AddCommand(pingCmd, stateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

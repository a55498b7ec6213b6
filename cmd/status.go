package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shv.dev/broker/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the running broker's status over its control socket",
	Run: func(cmd *cobra.Command, args []string) {
		runStatusCommand()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func socketFromConfig() string {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("failed to load config", err)
	}
	return cfg.Control.Socket
}

func runStatusCommand() {
	client := newControlClient(socketFromConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		exitWithError("broker is not running or control socket is inaccessible", err)
	}

	fmt.Printf("version:      %s\n", status.Version)
	fmt.Printf("uptime:       %ds\n", status.UptimeSeconds)
	fmt.Printf("peers:        %d\n", status.PeerCount)
	fmt.Printf("listen:       %v\n", status.ListenAddrs)
}

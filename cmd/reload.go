package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running broker to reload its configuration",
	Long: `Reload sends a reload request to the running broker's control socket.
The broker re-reads its configuration file and applies role, user, and
auto-setup changes; active peer connections are not dropped.`,
	Run: func(cmd *cobra.Command, args []string) {
		runReloadCommand()
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

func runReloadCommand() {
	client := newControlClient(socketFromConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Reload(ctx); err != nil {
		exitWithError("failed to reload broker configuration", err)
	}
	fmt.Println("configuration reloaded")
}

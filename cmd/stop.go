package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running broker to shut down gracefully",
	Long: `Stop sends a shutdown request to the running broker's control socket.
The broker closes every peer connection and listener, then exits with
status 0.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStopCommand() {
	client := newControlClient(socketFromConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Shutdown(ctx); err != nil {
		exitWithError("failed to stop broker", err)
	}
	fmt.Println("broker stopping")
}

// Package cmd implements the shvbrokerd command-line surface: a cobra
// command tree rooted at serve/validate/version, plus a small set of
// admin-client subcommands that talk to the running broker's control
// socket.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "shvbrokerd",
	Short: "Silicon Heaven RPC broker",
	Long: `shvbrokerd is a Silicon Heaven (SHV) RPC broker: it accepts peer
connections, performs the SHV login handshake, maintains a mount
namespace and subscription index, and routes requests, responses, and
signals between peers according to each peer's granted access level.`,
	Version: "0.1.0",
}

// Execute runs the command tree; main.go's only job is to call this and
// translate its error into a process exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/shvbrokerd/shvbrokerd.toml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shv.dev/broker/internal/config"
)

const exitConfigError = 64

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the broker configuration file without starting it",
	Long: `Validate loads and validates the configuration named by --config:
TOML syntax, known access-level names in every role, and a mountPoint
on every autosetup rule. It never binds a listener.`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidateCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(exitConfigError)
	}

	fmt.Printf("VALID: broker %q — %d listen URL(s), %d connect peer(s), %d role(s), %d user(s), %d autosetup rule(s)\n",
		cfg.Name, len(cfg.Listen), len(cfg.Connect), len(cfg.Role), len(cfg.User), len(cfg.AutoSetup))
}

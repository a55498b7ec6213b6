package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shv.dev/broker/internal/broker"
	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/control"
	"shv.dev/broker/internal/log"
)

const exitListenFailure = 71

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker in the foreground",
	Long: `Serve loads the configuration named by --config, binds every listen
URL, and routes peer traffic until it receives SIGINT/SIGTERM (clean
shutdown, exit 0) or SIGHUP (reload configuration without restarting).

Exit codes: 0 clean shutdown, 64 config error, 71 listen bind failure.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServeCommand()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfigError)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := log.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfigError)
	}

	b, err := broker.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfigError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := control.NewServer(cfg.Control.Socket, control.Handlers{
		Status: func() control.Status {
			s := b.Status()
			return control.Status{
				Version:       s.Version,
				UptimeSeconds: s.UptimeSeconds,
				PeerCount:     s.PeerCount,
				ListenAddrs:   s.ListenAddrs,
			}
		},
		Reload: func() error {
			newCfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return b.Reload(newCfg)
		},
		Shutdown: cancel,
	})
	go func() {
		if err := ctrl.Serve(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "control socket error: %v\n", err)
		}
	}()
	defer ctrl.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				cancel()
				return
			case syscall.SIGHUP:
				newCfg, err := config.Load(configFile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
					continue
				}
				if err := b.Reload(newCfg); err != nil {
					fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
				}
			}
		}
	}()

	if err := b.Run(ctx); err != nil {
		var bindErr *broker.ListenError
		if errors.As(err, &bindErr) {
			fmt.Fprintf(os.Stderr, "listen error: %v\n", err)
			os.Exit(exitListenFailure)
		}
		fmt.Fprintf(os.Stderr, "broker stopped with error: %v\n", err)
		os.Exit(1)
	}
}

// Package main is the entry point for the shvbrokerd Silicon Heaven broker.
package main

import (
	"fmt"
	"os"

	"shv.dev/broker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

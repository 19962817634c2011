// Package main — cmd/queen/main.go
//
// Queen orchestrator entrypoint. Wires every component described in
// spec.md §9 in dependency order and runs the process until SIGINT/SIGTERM:
//
//  1. Load and validate config.yaml.
//  2. Initialise the structured logger (zap).
//  3. Open the BoltDB store.
//  4. Build the Bus, Knowledge Board, Security Pipeline.
//  5. Build the worker Registry, run its wiring pass (Initialize).
//  6. Build the Dispatcher, Consensus Engine, Proposal Engine.
//  7. Build the Instance Lifecycle Manager and boot it (registration +
//     recovery scan).
//  8. Build the Push Channel hub and start its HTTP server.
//  9. Assemble the Supervisor and start the Prometheus metrics server.
// 10. Register a SIGHUP handler for config hot-reload.
// 11. Block on SIGINT/SIGTERM, then run graceful shutdown.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "queen",
		Short: "Queen — autonomous multi-agent orchestrator",
		Long: `Queen coordinates a hive of specialised worker agents (Bees) behind a
durable message bus, a shared knowledge board, a four-gate security
pipeline, and a weighted consensus engine.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "/etc/queen/config.yaml", "path to config.yaml")

	root.AddCommand(startCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(validateConfigCmd())
	return root
}

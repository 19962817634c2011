package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omakh-hive/queen/internal/config"
)

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate config.yaml without starting the process",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("%s: valid (schema_version=%s, node_id=%s)\n", path, cfg.SchemaVersion, cfg.NodeID)
			return nil
		},
	}
}

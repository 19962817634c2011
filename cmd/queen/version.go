package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omakh-hive/queen/internal/config"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("queen %s (commit=%s built=%s)\n",
				config.Version, config.GitCommit, config.BuildTime)
			return nil
		},
	}
}

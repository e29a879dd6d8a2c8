package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/bridge-echo/internal/config"
	"github.com/nextlevelbuilder/bridge-echo/internal/monitor"
)

func monitorCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live terminal view of bridge activity",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				os.Exit(1)
			}
			m := monitor.New(cfg.Server.Port, os.Stdout, os.Stderr)
			if err := m.Run(context.Background(), once); err != nil {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print one snapshot and exit")
	return cmd
}

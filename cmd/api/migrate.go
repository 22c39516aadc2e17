package main

import (
	"github.com/spf13/cobra"

	"menu3d/internal/infra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|status|down]",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "status":
				return infra.MigrationStatus(cmd.Context(), cfg.DatabaseURL, logger)
			case "down":
				return infra.MigrateDown(cmd.Context(), cfg.DatabaseURL, logger)
			default:
				return infra.Migrate(cmd.Context(), cfg.DatabaseURL, logger)
			}
		},
	}
	return cmd
}

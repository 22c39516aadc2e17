package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"menu3d/internal/infra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu3d",
		Short: "3D model generation service for menu dishes",
		Long: `menu3d turns photographs of a dish into a 3D model.

Uploads are validated and staged, submitted to an image-to-3D inference
provider, and the resulting asset is stored and registered against the dish.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newEventsCmd(),
	)
	return cmd
}

// loadRuntime reads configuration and builds the logger shared by every
// subcommand.
func loadRuntime() (*infra.Config, infra.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, infra.Logger{}, err
	}
	return cfg, infra.NewLogger(cfg.AppEnv), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"menu3d/internal/infra"
	"menu3d/internal/infra/credentials"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored inference provider token",
		Long: `Stores the provider token in the database. REPLICATE_API_TOKEN, when set in
the server environment, takes precedence over the stored value. A running server picks up a new
token on restart.`,
	}
	cmd.AddCommand(newTokenSetCmd(), newTokenDeleteCmd())
	return cmd
}

func newTokenSetCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the provider token",
		Example: `  menu3d token set --key r8_xxx
  REPLICATE_API_TOKEN=r8_xxx menu3d token set`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key = strings.TrimSpace(key)
			if key == "" {
				key = strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN"))
			}
			if key == "" {
				return errors.New("token is required via --key or REPLICATE_API_TOKEN")
			}
			return withCredentials(cmd.Context(), func(ctx context.Context, store *credentials.Store) error {
				props := map[string]any{"updated_by": "cli", "updated_at": time.Now().UTC().Format(time.RFC3339)}
				if err := store.SetToken(ctx, credentials.ProviderReplicate, key, props); err != nil {
					return fmt.Errorf("store token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s token (%s)\n", credentials.ProviderReplicate, mask(key))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Provider API token")
	return cmd
}

func newTokenDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored provider token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(cmd.Context(), func(ctx context.Context, store *credentials.Store) error {
				if err := store.DeleteToken(ctx, credentials.ProviderReplicate); err != nil {
					return fmt.Errorf("delete token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s token\n", credentials.ProviderReplicate)
				return nil
			})
		},
	}
}

func withCredentials(ctx context.Context, fn func(context.Context, *credentials.Store) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbpool.Close()
	return fn(ctx, credentials.NewStore(infra.NewSQLRunner(dbpool, logger)))
}

func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/vault"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "replayctl",
		Short:         "inspect, verify, and replay recorded gateway runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newReplayCmd())

	return rootCmd
}

// vaultFromEnv connects to the vault using the same environment conventions
// as docker-compose.
func vaultFromEnv(ctx context.Context) (*vault.Client, error) {
	log, err := logger.CLI()
	if err != nil {
		return nil, err
	}
	return vault.New(ctx, vault.Config{
		Endpoint:  envOr("VAULT_ENDPOINT", "localhost:9000"),
		AccessKey: envOr("VAULT_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("VAULT_SECRET_KEY", "minioadmin"),
		Bucket:    envOr("VAULT_BUCKET", "air-runs"),
		UseSSL:    envOr("VAULT_USE_SSL", "false") == "true",
	}, log.Logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

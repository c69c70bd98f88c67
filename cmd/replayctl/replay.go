package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <path/to/run.air.json>",
		Short: "replay a recorded run against the provider and report drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.Load(args[0])
			if err != nil {
				return fmt.Errorf("load record: %w", err)
			}

			printRecord(rec)
			fmt.Println()

			ctx := cmd.Context()
			vc, err := vaultFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("vault connect: %w", err)
			}

			apiKey := envOr("OPENAI_API_KEY", "")
			if apiKey == "" {
				return fmt.Errorf("OPENAI_API_KEY required for replay")
			}

			fmt.Println("Replaying...")
			result, err := replay.Run(ctx, rec, replay.Options{
				ProviderURL: envOr("PROVIDER_URL", "https://api.openai.com"),
				VaultClient: vc,
				APIKey:      apiKey,
			})
			if err != nil {
				return fmt.Errorf("replay failed: %w", err)
			}

			fmt.Println()
			fmt.Printf("Similarity: %.2f\n", result.Similarity)

			if result.Drift {
				fmt.Printf("DRIFT DETECTED: %s\n", result.DriftSummary)
				// Full result as JSON for CI consumption.
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(data))
				return fmt.Errorf("replay drifted from original")
			}

			fmt.Println("NO DRIFT: replay matches original within threshold.")
			return nil
		},
	}
	return cmd
}

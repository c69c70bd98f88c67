package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/vault"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path/to/run.air.json>",
		Short: "fetch vaulted content and verify record checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.Load(args[0])
			if err != nil {
				return fmt.Errorf("load record: %w", err)
			}

			ctx := cmd.Context()
			vc, err := vaultFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("vault connect: %w", err)
			}

			if err := verifyRef(cmd, vc, "request", rec.RequestVaultRef, rec.RequestChecksum); err != nil {
				return err
			}
			if err := verifyRef(cmd, vc, "response", rec.ResponseVaultRef, rec.ResponseChecksum); err != nil {
				return err
			}

			fmt.Println("OK: all checksums match.")
			return nil
		},
	}
}

func verifyRef(cmd *cobra.Command, vc *vault.Client, name, uri, checksum string) error {
	if uri == "" {
		fmt.Printf("%s: not vaulted, skipping\n", name)
		return nil
	}

	key := vault.KeyFromURI(uri)
	data, err := vc.Fetch(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}

	if checksum != "" && !vault.VerifyChecksum(data, checksum) {
		return fmt.Errorf("%s checksum mismatch: record has %s, content hashes to %s",
			name, checksum, vault.Checksum(data))
	}

	fmt.Printf("%s: %d bytes, checksum verified\n", name, len(data))
	return nil
}

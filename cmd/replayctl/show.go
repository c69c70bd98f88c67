package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airblackbox/gateway/internal/recorder"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <path/to/run.air.json>",
		Short: "print the metadata of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.Load(args[0])
			if err != nil {
				return fmt.Errorf("load record: %w", err)
			}
			printRecord(rec)
			return nil
		},
	}
}

func printRecord(rec recorder.Record) {
	fmt.Printf("Run ID:    %s\n", rec.RunID)
	fmt.Printf("Trace ID:  %s\n", rec.TraceID)
	fmt.Printf("Model:     %s\n", rec.Model)
	fmt.Printf("Provider:  %s\n", rec.Provider)
	fmt.Printf("Endpoint:  %s\n", rec.Endpoint)
	fmt.Printf("Tokens:    %d\n", rec.Tokens.Total)
	fmt.Printf("Duration:  %dms\n", rec.DurationMS)
	fmt.Printf("Status:    %s\n", rec.Status)
	if rec.Error != "" {
		fmt.Printf("Error:     %s\n", rec.Error)
	}
}

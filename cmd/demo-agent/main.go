// Command demo-agent sends a single chat completion through the gateway and
// prints the reply, so operators can verify the recording pipeline end to
// end.
//
// Prerequisites:
//
//	docker compose up --build
//	export OPENAI_API_KEY=sk-...
//
// Usage:
//
//	demo-agent
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

type config struct {
	GatewayURL string
	APIKey     string
}

// resolveConfig reads the environment before any network activity so a
// missing credential aborts cleanly.
func resolveConfig() (config, error) {
	cfg := config{
		GatewayURL: os.Getenv("GATEWAY_URL"),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://localhost:8080"
	}
	if cfg.APIKey == "" {
		return config{}, fmt.Errorf("Set OPENAI_API_KEY first")
	}
	return cfg, nil
}

func newClient(cfg config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.GatewayURL + "/v1"
	return openai.NewClientWithConfig(clientCfg)
}

// run issues the single demo completion and writes the report to out.
func run(ctx context.Context, cfg config, out io.Writer) error {
	client := newClient(cfg)

	fmt.Fprintln(out, "=== AIR Blackbox Gateway Demo ===")
	fmt.Fprintf(out, "Gateway: %s\n", cfg.GatewayURL)
	fmt.Fprintln(out)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a concise assistant."},
			{Role: openai.ChatMessageRoleUser, Content: "In one sentence, what is a flight recorder and why do aircraft have them?"},
		},
		MaxTokens: 150,
	})
	if err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}

	fmt.Fprintf(out, "Model:  %s\n", resp.Model)
	fmt.Fprintf(out, "Tokens: %d\n", resp.Usage.TotalTokens)
	fmt.Fprintf(out, "Reply:  %s\n", resp.Choices[0].Message.Content)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Check the x-run-id header in your gateway logs for the run record.")
	fmt.Fprintln(out, "View traces at: http://localhost:16686 (Jaeger)")
	return nil
}

func main() {
	cfg, err := resolveConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

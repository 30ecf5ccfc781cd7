package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/prompt"
	"github.com/garyjia/expense-validator/internal/application/service"
	"github.com/garyjia/expense-validator/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-validator/pkg/utils"
)

const samplePolicy = "Travel expenses over $500 require manager approval. Meals are capped at $75 per person per day."

func main() {
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	baseURL := flag.String("base-url", "", "Alternative API base URL (or set OPENAI_BASE_URL env var)")
	model := flag.String("model", openai.DefaultModel, "Chat model to test")
	timeout := flag.Duration("timeout", 30*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if *baseURL == "" {
		*baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if *apiKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		fmt.Fprintf(os.Stderr, "Usage: test-llm-connection --key sk-... [--model gpt-4o-mini] [--timeout 30s]\n")
		os.Exit(1)
	}

	fmt.Println("=== LLM Connection Test ===")
	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", *model)
	if *baseURL != "" {
		fmt.Printf("  Base URL: %s\n", *baseURL)
	}
	fmt.Printf("  API key length: %d chars\n", len(*apiKey))
	if len(*apiKey) >= 4 {
		fmt.Printf("  API key prefix: %s...\n", (*apiKey)[:4])
	}
	fmt.Printf("  Timeout: %v\n", *timeout)
	fmt.Println()

	client := openai.NewClient(openai.Config{
		APIKey:  *apiKey,
		BaseURL: *baseURL,
		Model:   *model,
		Timeout: *timeout,
		Breaker: openai.DefaultBreakerConfig(),
	}, logger)

	extractor := service.NewPolicyExtractor(client, prompt.Default(), utils.NewKeyValueLogger(logger))

	fmt.Println("Sample policy:")
	fmt.Printf("  %s\n\n", samplePolicy)
	fmt.Println("Sending policy extraction request...")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	policy, err := extractor.Extract(ctx, samplePolicy)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: policy extraction failed\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Possible causes:\n")
		fmt.Fprintf(os.Stderr, "  1. Invalid or expired OPENAI_API_KEY\n")
		fmt.Fprintf(os.Stderr, "  2. Network connectivity issue\n")
		fmt.Fprintf(os.Stderr, "  3. API quota exceeded\n")
		fmt.Fprintf(os.Stderr, "  4. Model %q not available for this key\n", *model)
		fmt.Fprintf(os.Stderr, "  5. Model ignored JSON mode and returned malformed rules\n")
		os.Exit(1)
	}

	fmt.Printf("Received response in %v\n\n", duration)

	fmt.Println("=== Extracted Rules ===")
	for i, rule := range policy.Rules {
		limit := "none"
		if rule.HasLimit() {
			limit = fmt.Sprintf("$%.2f", *rule.MaxAmount)
		}
		fmt.Printf("  %d. [%s] limit %s: %s\n", i+1, rule.Category, limit, rule.PlainEnglish)
	}
	for _, g := range policy.GeneralRules {
		fmt.Printf("  - %s\n", g)
	}

	fmt.Println("\n=== Full Response (JSON) ===")
	jsonBytes, _ := json.MarshalIndent(policy, "", "  ")
	fmt.Println(string(jsonBytes))

	fmt.Println("\nLLM Connection Test PASSED")
}

// Ensure client implements port.LLMClient (compile-time check)
var _ port.LLMClient = (*openai.Client)(nil)

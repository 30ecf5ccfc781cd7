package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/container"
	"github.com/garyjia/expense-validator/internal/domain/entity"
)

func validateCmd() *cobra.Command {
	var (
		policyPath  string
		expensePath string
		reportPath  string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an expense CSV against a policy document and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			llm, err := container.ProvideLLMClient(&cfg.OpenAI, logger)
			if err != nil {
				return err
			}
			prompts, err := container.ProvidePrompts(&cfg.Validation)
			if err != nil {
				return err
			}
			pipeline, err := container.ProvidePipeline(&cfg.Validation, llm, prompts, nil, logger)
			if err != nil {
				return err
			}
			reader := container.ProvideDocumentReader(&cfg.Storage, logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			policyText, err := readDocument(ctx, reader, policyPath)
			if err != nil {
				return err
			}
			expenseText, err := readDocument(ctx, reader, expensePath)
			if err != nil {
				return err
			}

			result, err := pipeline.Pipeline.Run(ctx, policyText, expenseText)
			if err != nil {
				logger.Error("Validation failed", zap.Error(err))
				return err
			}

			if reportPath != "" {
				if err := writeReport(container.ProvideReportRenderer(logger), result, reportPath); err != nil {
					return err
				}
				logger.Info("Report written", zap.String("path", reportPath))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "Policy document (.md, .txt or .pdf)")
	cmd.Flags().StringVar(&expensePath, "expenses", "", "Expense report (.csv)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write an XLSX report to this path")
	_ = cmd.MarkFlagRequired("policy")
	_ = cmd.MarkFlagRequired("expenses")

	return cmd
}

func readDocument(ctx context.Context, reader port.DocumentReader, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, err := reader.ReadText(ctx, filepath.Base(path), content)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	return text, nil
}

func writeReport(renderer port.ReportRenderer, result *entity.PipelineResult, path string) error {
	data, err := renderer.Render(result)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

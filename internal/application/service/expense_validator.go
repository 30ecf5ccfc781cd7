package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/prompt"
	"github.com/garyjia/expense-validator/internal/domain/entity"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of expenses sent in one LLM request
const DefaultBatchSize = 5

// ValidatorConfig controls batching of the expense validator
type ValidatorConfig struct {
	// BatchSize is the maximum number of expenses per LLM request
	BatchSize int

	// Concurrency is the number of batches in flight at once; 1 is sequential
	Concurrency int
}

// DefaultValidatorConfig returns the sequential, five-per-batch configuration
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		BatchSize:   DefaultBatchSize,
		Concurrency: 1,
	}
}

// ExpenseValidator classifies expenses against an extracted policy
type ExpenseValidator interface {
	Validate(ctx context.Context, expenses []entity.Expense, policy *entity.ExtractedPolicy) ([]entity.ValidationResult, error)
}

type expenseValidatorImpl struct {
	llm     port.LLMClient
	prompts *prompt.Catalog
	config  ValidatorConfig
	logger  Logger
}

// NewExpenseValidator creates a new ExpenseValidator
func NewExpenseValidator(llm port.LLMClient, prompts *prompt.Catalog, config ValidatorConfig, logger Logger) ExpenseValidator {
	if prompts == nil {
		prompts = prompt.Default()
	}
	if config.BatchSize < 1 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &expenseValidatorImpl{
		llm:     llm,
		prompts: prompts,
		config:  config,
		logger:  orNop(logger),
	}
}

// Validate returns one result per expense, in input order. Any failing batch
// fails the whole call and no partial results are returned.
func (v *expenseValidatorImpl) Validate(ctx context.Context, expenses []entity.Expense, policy *entity.ExtractedPolicy) ([]entity.ValidationResult, error) {
	batches := Chunk(expenses, v.config.BatchSize)
	slots := make([][]entity.ValidationResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			results, err := v.validateBatch(gctx, batch, policy, i+1)
			if err != nil {
				return err
			}
			slots[i] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		v.logger.Error("Expense validation failed", "batches", len(batches), "error", err)
		return nil, err
	}

	results := make([]entity.ValidationResult, 0, len(expenses))
	for _, slot := range slots {
		results = append(results, slot...)
	}

	v.logger.Info("Expenses validated",
		"expenses", len(expenses),
		"batches", len(batches))

	return results, nil
}

func (v *expenseValidatorImpl) validateBatch(ctx context.Context, batch []entity.Expense, policy *entity.ExtractedPolicy, batchNumber int) ([]entity.ValidationResult, error) {
	// An earlier batch already failed
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userPrompt, err := v.prompts.ExpenseValidationUser(batch, policy)
	if err != nil {
		return nil, fmt.Errorf("build validation prompt: %w", err)
	}

	content, err := v.llm.Complete(ctx, v.prompts.ExpenseValidationSystem(), userPrompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, entity.ErrLLMEmptyResponse
	}

	return parseValidationResults([]byte(content), batch, batchNumber)
}

package service

import (
	"context"
	"time"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// Pipeline stage names reported to the observer
const (
	StageParse    = "parse"
	StageExtract  = "extract"
	StageValidate = "validate"
	StageTotal    = "total"
)

// ValidationPipeline runs parse, extract and validate in order
type ValidationPipeline interface {
	Run(ctx context.Context, policyText, expenseText string) (*entity.PipelineResult, error)
}

type validationPipelineImpl struct {
	parser    ExpenseParser
	extractor PolicyExtractor
	validator ExpenseValidator
	observer  port.PipelineObserver
	logger    Logger
}

// NewValidationPipeline creates a new ValidationPipeline. observer may be nil.
func NewValidationPipeline(
	parser ExpenseParser,
	extractor PolicyExtractor,
	validator ExpenseValidator,
	observer port.PipelineObserver,
	logger Logger,
) ValidationPipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &validationPipelineImpl{
		parser:    parser,
		extractor: extractor,
		validator: validator,
		observer:  observer,
		logger:    orNop(logger),
	}
}

// Run executes the stages strictly in order. The first failing stage aborts
// the run and its error is returned as is.
func (p *validationPipelineImpl) Run(ctx context.Context, policyText, expenseText string) (*entity.PipelineResult, error) {
	totalStart := time.Now()

	parseStart := time.Now()
	expenses, err := p.parser.Parse(expenseText)
	parseElapsed := time.Since(parseStart)
	p.observer.ObserveStage(StageParse, parseElapsed, err)
	if err != nil {
		p.logger.Error("Expense parsing failed", "error", err)
		return nil, p.fail(totalStart, err)
	}

	extractStart := time.Now()
	policy, err := p.extractor.Extract(ctx, policyText)
	extractElapsed := time.Since(extractStart)
	p.observer.ObserveStage(StageExtract, extractElapsed, err)
	if err != nil {
		return nil, p.fail(totalStart, err)
	}

	validateStart := time.Now()
	results, err := p.validator.Validate(ctx, expenses, policy)
	validateElapsed := time.Since(validateStart)
	p.observer.ObserveStage(StageValidate, validateElapsed, err)
	if err != nil {
		return nil, p.fail(totalStart, err)
	}

	totalElapsed := time.Since(totalStart)
	p.observer.ObserveStage(StageTotal, totalElapsed, nil)
	p.observer.ObserveResults(results)

	summary := entity.Summarize(results)
	p.logger.Info("Validation pipeline completed",
		"expenses", len(expenses),
		"approved", summary.Approved,
		"needs_review", summary.NeedsReview,
		"violations", summary.Violations,
		"total_ms", milliseconds(totalElapsed))

	return &entity.PipelineResult{
		Expenses:        expenses,
		ExtractedPolicy: policy,
		Results:         results,
		Debug: entity.DebugTiming{
			ParseTimeMs:    milliseconds(parseElapsed),
			ExtractTimeMs:  milliseconds(extractElapsed),
			ValidateTimeMs: milliseconds(validateElapsed),
			TotalTimeMs:    milliseconds(totalElapsed),
		},
	}, nil
}

func (p *validationPipelineImpl) fail(totalStart time.Time, err error) error {
	p.observer.ObserveStage(StageTotal, time.Since(totalStart), err)
	return err
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(stage string, elapsed time.Duration, err error) {}
func (nopObserver) ObserveResults(results []entity.ValidationResult)            {}

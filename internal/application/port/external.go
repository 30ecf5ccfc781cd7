package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// LLMClient sends one chat completion in JSON-object mode and returns the
// raw message content. An empty string means the provider returned nothing.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DocumentReader turns an uploaded document into plain text
type DocumentReader interface {
	ReadText(ctx context.Context, name string, content []byte) (string, error)
}

// ReportRenderer renders a pipeline result into a downloadable document
type ReportRenderer interface {
	Render(result *entity.PipelineResult) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// PipelineObserver receives timing and outcome signals from a validation run
type PipelineObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveResults(results []entity.ValidationResult)
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/prompt"
	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// PolicyExtractor derives a structured rule set from policy text
type PolicyExtractor interface {
	Extract(ctx context.Context, policyText string) (*entity.ExtractedPolicy, error)
}

type policyExtractorImpl struct {
	llm     port.LLMClient
	prompts *prompt.Catalog
	logger  Logger
}

// NewPolicyExtractor creates a new PolicyExtractor
func NewPolicyExtractor(llm port.LLMClient, prompts *prompt.Catalog, logger Logger) PolicyExtractor {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &policyExtractorImpl{
		llm:     llm,
		prompts: prompts,
		logger:  orNop(logger),
	}
}

// Extract sends the policy to the LLM and checks the answer's shape
func (e *policyExtractorImpl) Extract(ctx context.Context, policyText string) (*entity.ExtractedPolicy, error) {
	userPrompt, err := e.prompts.PolicyExtractionUser(policyText)
	if err != nil {
		return nil, fmt.Errorf("build extraction prompt: %w", err)
	}

	content, err := e.llm.Complete(ctx, e.prompts.PolicyExtractionSystem(), userPrompt)
	if err != nil {
		e.logger.Error("Policy extraction call failed", "error", err)
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		e.logger.Error("Policy extraction returned no content")
		return nil, entity.ErrLLMEmptyResponse
	}

	policy, err := ParseExtractedPolicy([]byte(content))
	if err != nil {
		e.logger.Error("Policy extraction response rejected", "error", err)
		return nil, err
	}

	e.logger.Info("Policy rules extracted",
		"rules", len(policy.Rules),
		"general_rules", len(policy.GeneralRules))

	return policy, nil
}

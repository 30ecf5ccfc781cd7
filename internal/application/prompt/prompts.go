// Package prompt holds the LLM instructions used by the validation pipeline.
// Defaults are compiled in; a YAML file may override any of them.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/template"

	"github.com/garyjia/expense-validator/internal/domain/entity"
	"gopkg.in/yaml.v3"
)

// Pair is a system instruction plus a user instruction template
type Pair struct {
	System       string `yaml:"system"`
	UserTemplate string `yaml:"user_template"`
}

// Catalog holds all prompts used by the pipeline
type Catalog struct {
	PolicyExtraction  Pair `yaml:"policy_extraction"`
	ExpenseValidation Pair `yaml:"expense_validation"`

	extraction *template.Template
	validation *template.Template
}

const policyExtractionSystem = "You are an expense policy analyzer. Extract rules from policies and return structured JSON."

const policyExtractionUser = `Extract all expense rules from this policy document.
Return JSON matching this shape:
{
  "rules": [
    {
      "category": string,
      "maxAmount": number (optional),
      "conditions": [string] (optional),
      "plainEnglish": string
    }
  ],
  "generalRules": [string]
}
Guidelines:
- Use consistent lowercase category names
- Only set maxAmount for hard limits, not approval thresholds
- Include all conditions in the array
- Preserve original wording in plainEnglish

Policy document:
{{.PolicyText}}`

const expenseValidationSystem = "You are an expense validator. Validate expenses against policy rules and return structured JSON with validation results."

const expenseValidationUser = `Validate each expense against the policy rules.
Return JSON: { "results": [ValidationResult] } with one entry per expense, in the same order, where ValidationResult is:
{
  "expense": Expense (copied unchanged),
  "status": "approved" | "needs_review" | "violation",
  "reason": string,
  "ruleApplied": string (optional)
}
Guidelines:
- Match expenses to rules by category
- Check against maxAmount if it exists
- Check all conditions
- Consider generalRules
- Use "approved" if no violations
- Use "needs_review" if requires manual approval
- Use "violation" if breaks a rule
- Provide clear, specific reasons

Expenses:
{{.ExpensesJSON}}

Policy:
{{.PolicyJSON}}`

// Default returns the built-in catalog
func Default() *Catalog {
	c := &Catalog{
		PolicyExtraction: Pair{
			System:       policyExtractionSystem,
			UserTemplate: policyExtractionUser,
		},
		ExpenseValidation: Pair{
			System:       expenseValidationSystem,
			UserTemplate: expenseValidationUser,
		},
	}
	// The defaults are constants; a parse failure here is a programming error.
	if err := c.compile(); err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML prompt file and overlays it on the defaults.
// An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML prompt definitions on the defaults
func Parse(data []byte) (*Catalog, error) {
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	c := Default()
	mergePair(&c.PolicyExtraction, override.PolicyExtraction)
	mergePair(&c.ExpenseValidation, override.ExpenseValidation)

	if err := c.compile(); err != nil {
		return nil, err
	}
	return c, nil
}

func mergePair(dst *Pair, src Pair) {
	if src.System != "" {
		dst.System = src.System
	}
	if src.UserTemplate != "" {
		dst.UserTemplate = src.UserTemplate
	}
}

func (c *Catalog) compile() error {
	var err error
	if c.extraction, err = template.New("policy_extraction").Option("missingkey=error").Parse(c.PolicyExtraction.UserTemplate); err != nil {
		return fmt.Errorf("failed to parse policy_extraction template: %w", err)
	}
	if c.validation, err = template.New("expense_validation").Option("missingkey=error").Parse(c.ExpenseValidation.UserTemplate); err != nil {
		return fmt.Errorf("failed to parse expense_validation template: %w", err)
	}
	return nil
}

// PolicyExtractionSystem returns the system instruction for rule extraction
func (c *Catalog) PolicyExtractionSystem() string {
	return c.PolicyExtraction.System
}

// PolicyExtractionUser renders the user instruction for rule extraction
func (c *Catalog) PolicyExtractionUser(policyText string) (string, error) {
	return execute(c.extraction, struct{ PolicyText string }{policyText})
}

// ExpenseValidationSystem returns the system instruction for batch validation
func (c *Catalog) ExpenseValidationSystem() string {
	return c.ExpenseValidation.System
}

// ExpenseValidationUser renders the user instruction for one batch
func (c *Catalog) ExpenseValidationUser(expenses []entity.Expense, policy *entity.ExtractedPolicy) (string, error) {
	expensesJSON, err := json.MarshalIndent(expenses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal expenses: %w", err)
	}
	policyJSON, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}

	return execute(c.validation, struct {
		ExpensesJSON string
		PolicyJSON   string
	}{string(expensesJSON), string(policyJSON)})
}

func execute(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

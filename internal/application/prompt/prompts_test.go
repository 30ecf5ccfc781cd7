package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PolicyExtraction(t *testing.T) {
	c := Default()

	assert.Contains(t, c.PolicyExtractionSystem(), "policy analyzer")

	user, err := c.PolicyExtractionUser("Travel expenses over $500 require approval.")
	require.NoError(t, err)
	assert.Contains(t, user, "generalRules")
	assert.Contains(t, user, "Travel expenses over $500 require approval.")
}

func TestDefault_ExpenseValidation(t *testing.T) {
	c := Default()
	limit := 500.0
	policy := &entity.ExtractedPolicy{
		Rules:        []entity.PolicyRule{{Category: "travel", MaxAmount: &limit, PlainEnglish: "Travel up to $500"}},
		GeneralRules: []string{"Receipts required"},
	}
	expenses := []entity.Expense{{Date: "2024-01-01", Employee: "Jane", Category: "travel", Amount: 600, Description: "flight"}}

	user, err := c.ExpenseValidationUser(expenses, policy)
	require.NoError(t, err)

	assert.Contains(t, c.ExpenseValidationSystem(), "expense validator")
	assert.Contains(t, user, `"employee": "Jane"`)
	assert.Contains(t, user, `"maxAmount": 500`)
	assert.Contains(t, user, "needs_review")
}

func TestPolicyTextIsNotInterpretedAsTemplate(t *testing.T) {
	c := Default()

	user, err := c.PolicyExtractionUser("Meals {{ .Secret }} are capped")
	require.NoError(t, err)
	assert.Contains(t, user, "Meals {{ .Secret }} are capped")
}

func TestParse_OverridesOnlyGivenFields(t *testing.T) {
	c, err := Parse([]byte(`
policy_extraction:
  system: "You read policies."
expense_validation:
  user_template: "Check {{.ExpensesJSON}} against {{.PolicyJSON}}"
`))
	require.NoError(t, err)

	assert.Equal(t, "You read policies.", c.PolicyExtractionSystem())
	assert.Equal(t, expenseValidationSystem, c.ExpenseValidationSystem())

	user, err := c.ExpenseValidationUser([]entity.Expense{}, &entity.ExtractedPolicy{})
	require.NoError(t, err)
	assert.Contains(t, user, "Check []")
}

func TestParse_RejectsBrokenTemplate(t *testing.T) {
	_, err := Parse([]byte("policy_extraction:\n  user_template: \"{{.PolicyText\"\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, policyExtractionSystem, c.PolicyExtractionSystem())

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("expense_validation:\n  system: custom\n"), 0644))

	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", c.ExpenseValidationSystem())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

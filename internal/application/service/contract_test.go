package service

import (
	"encoding/json"
	"testing"

	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractedPolicy_RoundTrip(t *testing.T) {
	limit := 500.0
	zero := 0.0
	original := &entity.ExtractedPolicy{
		Rules: []entity.PolicyRule{
			{Category: "travel", MaxAmount: &limit, Conditions: []string{"economy class"}, PlainEnglish: "Travel up to $500"},
			{Category: "meals", PlainEnglish: "Meals need receipts"},
			{Category: "gifts", MaxAmount: &zero, PlainEnglish: "No gifts"},
		},
		GeneralRules: []string{"Submit within 30 days"},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, err := ParseExtractedPolicy(data)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseExtractedPolicy_RoundTripNilSlices(t *testing.T) {
	tests := []struct {
		name   string
		policy entity.ExtractedPolicy
		want   *entity.ExtractedPolicy
	}{
		{
			name:   "zero value",
			policy: entity.ExtractedPolicy{},
			want:   &entity.ExtractedPolicy{Rules: []entity.PolicyRule{}, GeneralRules: []string{}},
		},
		{
			name:   "nil general rules",
			policy: entity.ExtractedPolicy{Rules: []entity.PolicyRule{{Category: "travel", PlainEnglish: "Travel needs approval"}}},
			want: &entity.ExtractedPolicy{
				Rules:        []entity.PolicyRule{{Category: "travel", PlainEnglish: "Travel needs approval"}},
				GeneralRules: []string{},
			},
		},
		{
			name:   "nil rules",
			policy: entity.ExtractedPolicy{GeneralRules: []string{"Receipts are required"}},
			want:   &entity.ExtractedPolicy{Rules: []entity.PolicyRule{}, GeneralRules: []string{"Receipts are required"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byValue, err := json.Marshal(tt.policy)
			require.NoError(t, err)
			byPointer, err := json.Marshal(&tt.policy)
			require.NoError(t, err)
			assert.JSONEq(t, string(byValue), string(byPointer))
			assert.NotContains(t, string(byValue), "null")

			parsed, err := ParseExtractedPolicy(byValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, parsed)
		})
	}
}

func TestParseExtractedPolicy_RejectsBadShape(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantPath string
	}{
		{"not json", `rules: travel`, ""},
		{"trailing garbage", `{"rules":[],"generalRules":[]} extra`, ""},
		{"top level array", `[]`, "$ must be an object"},
		{"missing rules", `{"generalRules":[]}`, "rules must be an array"},
		{"missing generalRules", `{"rules":[]}`, "generalRules must be an array"},
		{"rule not object", `{"rules":["travel"],"generalRules":[]}`, "rules[0] must be an object"},
		{"category not string", `{"rules":[{"category":1,"plainEnglish":"x"}],"generalRules":[]}`, "rules[0].category must be a string"},
		{"missing plainEnglish", `{"rules":[{"category":"travel"}],"generalRules":[]}`, "rules[0].plainEnglish must be a string"},
		{"maxAmount string", `{"rules":[{"category":"travel","plainEnglish":"x","maxAmount":"500"}],"generalRules":[]}`, "rules[0].maxAmount must be a number"},
		{"maxAmount null", `{"rules":[{"category":"travel","plainEnglish":"x","maxAmount":null}],"generalRules":[]}`, "rules[0].maxAmount must be a number"},
		{"conditions null", `{"rules":[{"category":"travel","plainEnglish":"x","conditions":null}],"generalRules":[]}`, "rules[0].conditions must be an array"},
		{"conditions not array", `{"rules":[{"category":"travel","plainEnglish":"x","conditions":"economy"}],"generalRules":[]}`, "rules[0].conditions must be an array"},
		{"condition not string", `{"rules":[{"category":"travel","plainEnglish":"x","conditions":[1]}],"generalRules":[]}`, "rules[0].conditions[0] must be a string"},
		{"second rule bad", `{"rules":[{"category":"a","plainEnglish":"x"},{"category":"b"}],"generalRules":[]}`, "rules[1].plainEnglish must be a string"},
		{"general rule not string", `{"rules":[],"generalRules":["ok",false]}`, "generalRules[1] must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := ParseExtractedPolicy([]byte(tt.content))

			require.Error(t, err)
			assert.Nil(t, policy)

			var ce *entity.LLMContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StagePolicyExtraction, ce.Stage)
			if tt.wantPath != "" {
				assert.Contains(t, err.Error(), tt.wantPath)
			} else {
				assert.Contains(t, err.Error(), "failed to parse LLM response as JSON")
			}
		})
	}
}

func TestParseValidationResults(t *testing.T) {
	batch := []entity.Expense{
		{Date: "2024-01-01", Employee: "Jane", Category: "travel", Amount: 600, Description: "flight"},
		{Date: "2024-01-02", Employee: "Bob", Category: "meals", Amount: 20, Description: "lunch"},
	}

	content := `{"results":[
		{"expense":{"employee":"Someone else","amount":1},"status":"needs_review","reason":"over $500","ruleApplied":"travel"},
		{"expense":{},"status":"approved","reason":"ok","ruleApplied":null}
	]}`

	results, err := parseValidationResults([]byte(content), batch, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, batch[0], results[0].Expense)
	assert.Equal(t, entity.StatusNeedsReview, results[0].Status)
	require.NotNil(t, results[0].RuleApplied)
	assert.Equal(t, "travel", *results[0].RuleApplied)

	assert.Equal(t, batch[1], results[1].Expense)
	assert.Equal(t, entity.StatusApproved, results[1].Status)
	assert.Nil(t, results[1].RuleApplied)
}

func TestParseValidationResults_RejectsBadShape(t *testing.T) {
	batch := []entity.Expense{{Description: "flight"}}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"not json", `{"results": [`, "failed to parse LLM response as JSON"},
		{"missing results", `{"items":[]}`, "results must be an array"},
		{"expense missing", `{"results":[{"status":"approved","reason":"ok"}]}`, "results[0].expense must be an object"},
		{"expense null", `{"results":[{"expense":null,"status":"approved","reason":"ok"}]}`, "results[0].expense must be an object"},
		{"unknown status", `{"results":[{"expense":{},"status":"rejected","reason":"ok"}]}`, "results[0].status must be one of"},
		{"status wrong case", `{"results":[{"expense":{},"status":"APPROVED","reason":"ok"}]}`, "results[0].status must be one of"},
		{"reason missing", `{"results":[{"expense":{},"status":"approved"}]}`, "results[0].reason must be a string"},
		{"ruleApplied number", `{"results":[{"expense":{},"status":"approved","reason":"ok","ruleApplied":3}]}`, "results[0].ruleApplied must be a string"},
		{"too few results", `{"results":[]}`, "expected 1 results, got 0"},
		{"too many results", `{"results":[{"expense":{},"status":"approved","reason":"a"},{"expense":{},"status":"approved","reason":"b"}]}`, "expected 1 results, got 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := parseValidationResults([]byte(tt.content), batch, 4)

			require.Error(t, err)
			assert.Nil(t, results)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "batch 4")

			var ce *entity.LLMContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StageExpenseValidation, ce.Stage)
		})
	}
}

package service

import (
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

// LLM stages, used as the Stage of contract errors
const (
	StagePolicyExtraction  = "policy extraction"
	StageExpenseValidation = "expense validation"
)

// shapeError names the first JSON path that deviates from the expected shape
type shapeError struct {
	path string
	want string
}

func (e *shapeError) Error() string {
	return fmt.Sprintf("%s must be %s", e.path, e.want)
}

// ParseExtractedPolicy decodes LLM output and checks it strictly against the
// ExtractedPolicy shape. Malformed rules are rejected, never dropped.
func ParseExtractedPolicy(content []byte) (*entity.ExtractedPolicy, error) {
	var raw interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, &entity.LLMContractError{Stage: StagePolicyExtraction, Msg: "failed to parse LLM response as JSON", Err: err}
	}

	policy, err := decodeExtractedPolicy(raw)
	if err != nil {
		return nil, &entity.LLMContractError{Stage: StagePolicyExtraction, Msg: "LLM response does not match ExtractedPolicy structure", Err: err}
	}
	return policy, nil
}

func decodeExtractedPolicy(raw interface{}) (*entity.ExtractedPolicy, error) {
	obj, err := asObject(raw, "$")
	if err != nil {
		return nil, err
	}

	rawRules, err := asArray(obj["rules"], "rules")
	if err != nil {
		return nil, err
	}
	generalRules, err := asStringArray(obj["generalRules"], "generalRules")
	if err != nil {
		return nil, err
	}

	rules := make([]entity.PolicyRule, 0, len(rawRules))
	for i, rawRule := range rawRules {
		path := fmt.Sprintf("rules[%d]", i)
		ruleObj, err := asObject(rawRule, path)
		if err != nil {
			return nil, err
		}

		var rule entity.PolicyRule
		if rule.Category, err = asString(ruleObj["category"], path+".category"); err != nil {
			return nil, err
		}
		if rule.PlainEnglish, err = asString(ruleObj["plainEnglish"], path+".plainEnglish"); err != nil {
			return nil, err
		}
		// Optional keys may be absent; null is not a number or an array
		if v, ok := ruleObj["maxAmount"]; ok {
			n, isNumber := v.(float64)
			if !isNumber {
				return nil, &shapeError{path: path + ".maxAmount", want: "a number"}
			}
			rule.MaxAmount = &n
		}
		if v, ok := ruleObj["conditions"]; ok {
			if rule.Conditions, err = asStringArray(v, path+".conditions"); err != nil {
				return nil, err
			}
		}
		rules = append(rules, rule)
	}

	return &entity.ExtractedPolicy{Rules: rules, GeneralRules: generalRules}, nil
}

// parseValidationResults decodes the LLM answer for one batch. The returned
// results carry the batch's own expenses, index for index.
func parseValidationResults(content []byte, batch []entity.Expense, batchNumber int) ([]entity.ValidationResult, error) {
	contractErr := func(msg string, err error) error {
		return &entity.LLMContractError{
			Stage: StageExpenseValidation,
			Msg:   fmt.Sprintf("batch %d: %s", batchNumber, msg),
			Err:   err,
		}
	}

	var raw interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, contractErr("failed to parse LLM response as JSON", err)
	}

	decoded, err := decodeValidationResults(raw)
	if err != nil {
		return nil, contractErr("LLM response does not match ValidationResult[] structure", err)
	}
	if len(decoded) != len(batch) {
		return nil, contractErr(fmt.Sprintf("expected %d results, got %d", len(batch), len(decoded)), nil)
	}

	for i := range decoded {
		decoded[i].Expense = batch[i]
	}
	return decoded, nil
}

func decodeValidationResults(raw interface{}) ([]entity.ValidationResult, error) {
	obj, err := asObject(raw, "$")
	if err != nil {
		return nil, err
	}
	items, err := asArray(obj["results"], "results")
	if err != nil {
		return nil, err
	}

	results := make([]entity.ValidationResult, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("results[%d]", i)
		itemObj, err := asObject(item, path)
		if err != nil {
			return nil, err
		}

		if _, err := asObject(itemObj["expense"], path+".expense"); err != nil {
			return nil, err
		}

		statusRaw, _ := itemObj["status"].(string)
		status, err := entity.ParseValidationStatus(statusRaw)
		if err != nil {
			return nil, &shapeError{path: path + ".status", want: `one of "approved", "needs_review", "violation"`}
		}

		reason, err := asString(itemObj["reason"], path+".reason")
		if err != nil {
			return nil, err
		}

		result := entity.ValidationResult{Status: status, Reason: reason}
		if v, ok := itemObj["ruleApplied"]; ok && v != nil {
			rule, isString := v.(string)
			if !isString {
				return nil, &shapeError{path: path + ".ruleApplied", want: "a string"}
			}
			result.RuleApplied = &rule
		}
		results = append(results, result)
	}

	return results, nil
}

func asObject(v interface{}, path string) (map[string]interface{}, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &shapeError{path: path, want: "an object"}
	}
	return obj, nil
}

func asArray(v interface{}, path string) ([]interface{}, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, &shapeError{path: path, want: "an array"}
	}
	return arr, nil
}

func asString(v interface{}, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &shapeError{path: path, want: "a string"}
	}
	return s, nil
}

func asStringArray(v interface{}, path string) ([]string, error) {
	arr, err := asArray(v, path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		s, err := asString(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

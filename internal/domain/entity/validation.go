package entity

import "fmt"

// ValidationStatus is the decision reached for a single expense
type ValidationStatus string

// Validation status constants
const (
	StatusApproved    ValidationStatus = "approved"
	StatusNeedsReview ValidationStatus = "needs_review"
	StatusViolation   ValidationStatus = "violation"
)

// Valid reports whether s is one of the known statuses
func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusNeedsReview, StatusViolation:
		return true
	}
	return false
}

// ParseValidationStatus converts a raw string into a ValidationStatus
func ParseValidationStatus(raw string) (ValidationStatus, error) {
	s := ValidationStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown validation status %q", raw)
	}
	return s, nil
}

// ValidationResult is the decision for one expense. Expense is held by value.
type ValidationResult struct {
	Expense     Expense          `json:"expense"`
	Status      ValidationStatus `json:"status"`
	Reason      string           `json:"reason"`
	RuleApplied *string          `json:"ruleApplied,omitempty"`
}

// ValidationSummary counts results per status
type ValidationSummary struct {
	Total       int `json:"total"`
	Approved    int `json:"approved"`
	NeedsReview int `json:"needsReview"`
	Violations  int `json:"violations"`
}

// Summarize tallies results by status
func Summarize(results []ValidationResult) ValidationSummary {
	summary := ValidationSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusApproved:
			summary.Approved++
		case StatusNeedsReview:
			summary.NeedsReview++
		case StatusViolation:
			summary.Violations++
		}
	}
	return summary
}

package entity

// DebugTiming holds wall-clock stage durations in milliseconds
type DebugTiming struct {
	ParseTimeMs    float64 `json:"parseTimeMs"`
	ExtractTimeMs  float64 `json:"extractTimeMs"`
	ValidateTimeMs float64 `json:"validateTimeMs"`
	TotalTimeMs    float64 `json:"totalTimeMs"`
}

// PipelineResult is returned by a validation run. It is never stored.
type PipelineResult struct {
	Expenses        []Expense          `json:"expenses"`
	ExtractedPolicy *ExtractedPolicy   `json:"extractedPolicy"`
	Results         []ValidationResult `json:"results"`
	Debug           DebugTiming        `json:"debug"`
}

package entity

import "encoding/json"

// PolicyRule is a single category rule derived from a policy document
type PolicyRule struct {
	Category     string   `json:"category"`
	MaxAmount    *float64 `json:"maxAmount,omitempty"`
	Conditions   []string `json:"conditions,omitempty"`
	PlainEnglish string   `json:"plainEnglish"`
}

// HasLimit returns true if the rule carries a hard amount limit
func (r *PolicyRule) HasLimit() bool {
	return r.MaxAmount != nil
}

// ExtractedPolicy is the structured rule set extracted from a policy document
type ExtractedPolicy struct {
	Rules        []PolicyRule `json:"rules"`
	GeneralRules []string     `json:"generalRules"`
}

// MarshalJSON writes nil Rules and GeneralRules as empty arrays, so every
// ExtractedPolicy serializes to the shape the extractor accepts
func (p ExtractedPolicy) MarshalJSON() ([]byte, error) {
	type plain ExtractedPolicy
	out := plain(p)
	if out.Rules == nil {
		out.Rules = []PolicyRule{}
	}
	if out.GeneralRules == nil {
		out.GeneralRules = []string{}
	}
	return json.Marshal(out)
}

// RuleFor returns the first rule matching category, or nil
func (p *ExtractedPolicy) RuleFor(category string) *PolicyRule {
	for i := range p.Rules {
		if p.Rules[i].Category == category {
			return &p.Rules[i]
		}
	}
	return nil
}

package plan

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Forward names how a sequential step's result is narrowed before it becomes
// part of the next step's input. Only the documented subset travels on.
type Forward string

const (
	// ForwardNone passes nothing downstream.
	ForwardNone Forward = ""
	// ForwardFirstMatch passes only matches[0] of the result, as {"lead": ...}.
	ForwardFirstMatch Forward = "first_match"
	// ForwardBuyerProfile passes only estimated_budget, property_preferences
	// and primary_motivation, as {"profile": {...}}.
	ForwardBuyerProfile Forward = "buyer_profile"
)

var ErrNoMatches = errors.New("result contains no matches to forward")

// Apply narrows result according to f.
func (f Forward) Apply(result string) (map[string]any, error) {
	switch f {
	case ForwardNone:
		return nil, nil

	case ForwardFirstMatch:
		var r struct {
			Matches []json.RawMessage `json:"matches"`
		}
		if err := json.Unmarshal([]byte(result), &r); err != nil {
			return nil, fmt.Errorf("cannot read matches: %w", err)
		}
		if len(r.Matches) == 0 {
			return nil, ErrNoMatches
		}
		return map[string]any{"lead": r.Matches[0]}, nil

	case ForwardBuyerProfile:
		var r struct {
			EstimatedBudget     string   `json:"estimated_budget"`
			PropertyPreferences []string `json:"property_preferences"`
			PrimaryMotivation   string   `json:"primary_motivation"`
		}
		if err := json.Unmarshal([]byte(result), &r); err != nil {
			return nil, fmt.Errorf("cannot read buyer profile: %w", err)
		}
		if r.EstimatedBudget == "" && len(r.PropertyPreferences) == 0 && r.PrimaryMotivation == "" {
			return nil, errors.New("buyer profile is empty")
		}
		return map[string]any{"profile": r}, nil

	default:
		return nil, fmt.Errorf("unknown forward rule %q", string(f))
	}
}

// Input builds the JSON input for a step from its static parameters and the
// fields forwarded by its predecessor. Forwarded fields win on collision.
func (s *Step) Input(forwarded map[string]any) (string, error) {
	merged := make(map[string]any, len(s.Parameters)+len(forwarded))
	for k, v := range s.Parameters {
		merged[k] = v
	}
	for k, v := range forwarded {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("step %d: encode input: %w", s.ID, err)
	}
	return string(data), nil
}

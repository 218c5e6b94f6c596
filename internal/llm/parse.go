package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"credverify/internal/domain"
)

var educationAllowedKeys = map[string]struct{}{
	"institution":     {},
	"degree":          {},
	"field_of_study":  {},
	"graduation_year": {},
	"honors":          {},
	"confidence":      {},
}

var malpracticeAllowedKeys = map[string]struct{}{
	"claim_count":            {},
	"open_claims":            {},
	"total_paid":             {},
	"most_recent_claim_year": {},
	"confidence":             {},
}

// ParseAndNormalize strictly decodes model output for an LLM-assisted
// step into its extraction struct and re-marshals it in canonical field
// order. Unknown keys and missing required keys are rejected so the
// declared response contract is the only shape that can reach storage.
func ParseAndNormalize(step domain.StepName, raw string) ([]byte, float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, 0, fmt.Errorf("empty model output")
	}

	switch step {
	case domain.StepEducationCredential:
		if err := validateKeys(trimmed, educationAllowedKeys, []string{
			"institution", "degree", "field_of_study", "graduation_year", "confidence",
		}); err != nil {
			return nil, 0, err
		}
		var v domain.EducationExtraction
		if err := strictDecode([]byte(trimmed), &v); err != nil {
			return nil, 0, err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, 0, err
		}
		return out, v.Confidence, nil
	case domain.StepMalpracticeHistory:
		if err := validateKeys(trimmed, malpracticeAllowedKeys, []string{
			"claim_count", "open_claims", "total_paid", "confidence",
		}); err != nil {
			return nil, 0, err
		}
		var v domain.MalpracticeExtraction
		if err := strictDecode([]byte(trimmed), &v); err != nil {
			return nil, 0, err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, 0, err
		}
		return out, v.Confidence, nil
	default:
		return nil, 0, fmt.Errorf("step %q has no extraction schema", step)
	}
}

// ValidateByRules runs the domain rule checks for an extraction payload.
func ValidateByRules(step domain.StepName, payload []byte) (domain.ValidationResult, error) {
	switch step {
	case domain.StepEducationCredential:
		var v domain.EducationExtraction
		if err := strictDecode(payload, &v); err != nil {
			return domain.ValidationResult{}, err
		}
		return domain.ValidateEducation(v), nil
	case domain.StepMalpracticeHistory:
		var v domain.MalpracticeExtraction
		if err := strictDecode(payload, &v); err != nil {
			return domain.ValidationResult{}, err
		}
		return domain.ValidateMalpractice(v), nil
	default:
		return domain.ValidationResult{}, fmt.Errorf("step %q has no extraction rules", step)
	}
}

func strictDecode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func validateKeys(raw string, allowed map[string]struct{}, required []string) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rawMap); err != nil {
		return err
	}
	for k := range rawMap {
		if _, ok := allowed[k]; !ok {
			keys := sortedKeys(allowed)
			return fmt.Errorf("unknown key %q, allowed: %v", k, keys)
		}
	}
	for _, req := range required {
		if _, ok := rawMap[req]; !ok {
			return fmt.Errorf("missing required key %q", req)
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

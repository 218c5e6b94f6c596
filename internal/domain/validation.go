package domain

import "time"

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
	Confidence  float64  `json:"confidence"`
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}

func ValidateEducation(v EducationExtraction) ValidationResult {
	failed := make([]string, 0)

	if v.Institution == nil || *v.Institution == "" {
		failed = append(failed, "education.institution_present")
	}
	if v.Degree == nil || *v.Degree == "" {
		failed = append(failed, "education.degree_present")
	}
	if v.GraduationYear == nil {
		failed = append(failed, "education.graduation_year_present")
	} else if *v.GraduationYear < 1900 || *v.GraduationYear > time.Now().Year() {
		failed = append(failed, "education.graduation_year_range")
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		failed = append(failed, "education.confidence_range")
	}

	return ValidationResult{FailedRules: failed, Confidence: v.Confidence}
}

func ValidateMalpractice(v MalpracticeExtraction) ValidationResult {
	failed := make([]string, 0)

	if v.ClaimCount < 0 || v.OpenClaims < 0 {
		failed = append(failed, "malpractice.counts_non_negative")
	}
	if v.OpenClaims > v.ClaimCount {
		failed = append(failed, "malpractice.open_claims_lte_total")
	}
	if v.TotalPaid < 0 {
		failed = append(failed, "malpractice.total_paid_non_negative")
	}
	if v.MostRecentClaimYear != nil {
		if *v.MostRecentClaimYear < 1900 || *v.MostRecentClaimYear > time.Now().Year() {
			failed = append(failed, "malpractice.claim_year_range")
		}
		if v.ClaimCount == 0 {
			failed = append(failed, "malpractice.claim_year_without_claims")
		}
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		failed = append(failed, "malpractice.confidence_range")
	}

	return ValidationResult{FailedRules: failed, Confidence: v.Confidence}
}

// ValidNPI reports whether n is a well-formed ten-digit NPI. The check
// digit is Luhn over the identifier prefixed with the 80840 issuer
// constant, per the NPPES numbering scheme.
func ValidNPI(n string) bool {
	if len(n) != 10 {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}

	digits := "80840" + n[:9]
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	check := (10 - sum%10) % 10
	return check == int(n[9]-'0')
}

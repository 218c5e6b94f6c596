package domain

const EducationJSONSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": [
    "institution",
    "degree",
    "field_of_study",
    "graduation_year",
    "confidence"
  ],
  "properties": {
    "institution": {"type": ["string", "null"]},
    "degree": {"type": ["string", "null"]},
    "field_of_study": {"type": ["string", "null"]},
    "graduation_year": {"type": ["integer", "null"]},
    "honors": {"type": ["string", "null"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

const MalpracticeJSONSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": [
    "claim_count",
    "open_claims",
    "total_paid",
    "confidence"
  ],
  "properties": {
    "claim_count": {"type": "integer"},
    "open_claims": {"type": "integer"},
    "total_paid": {"type": "number"},
    "most_recent_claim_year": {"type": ["integer", "null"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

type EducationExtraction struct {
	Institution    *string `json:"institution"`
	Degree         *string `json:"degree"`
	FieldOfStudy   *string `json:"field_of_study"`
	GraduationYear *int    `json:"graduation_year"`
	Honors         *string `json:"honors,omitempty"`
	Confidence     float64 `json:"confidence"`
}

type MalpracticeExtraction struct {
	ClaimCount          int     `json:"claim_count"`
	OpenClaims          int     `json:"open_claims"`
	TotalPaid           float64 `json:"total_paid"`
	MostRecentClaimYear *int    `json:"most_recent_claim_year,omitempty"`
	Confidence          float64 `json:"confidence"`
}

// SchemaForStep returns the JSON schema constraining model output for the
// LLM-assisted step kinds. Other steps have no schema.
func SchemaForStep(step StepName) string {
	switch step {
	case StepEducationCredential:
		return EducationJSONSchema
	case StepMalpracticeHistory:
		return MalpracticeJSONSchema
	default:
		return ""
	}
}

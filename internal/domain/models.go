package domain

import "encoding/json"

// StepName identifies one independent verification check in the fixed
// catalog. The set is closed; there is no runtime registration.
type StepName string

const (
	StepIdentifierLookup       StepName = "identifier_lookup"
	StepControlledSubstanceReg StepName = "controlled_substance_registration"
	StepStateLicense           StepName = "state_license"
	StepBoardCertification     StepName = "board_certification"
	StepMasterExclusionFile    StepName = "master_exclusion_file"
	StepFederalInsuranceProg   StepName = "federal_insurance_program"
	StepMalpracticeHistory     StepName = "malpractice_history"
	StepDataBankQuery          StepName = "data_bank_query"
	StepSanctionsExclusion     StepName = "sanctions_exclusion"
	StepEducationCredential    StepName = "education_credential"
	StepHospitalPrivilege      StepName = "hospital_privilege"
)

var KnownStepNames = []StepName{
	StepIdentifierLookup,
	StepControlledSubstanceReg,
	StepStateLicense,
	StepBoardCertification,
	StepMasterExclusionFile,
	StepFederalInsuranceProg,
	StepMalpracticeHistory,
	StepDataBankQuery,
	StepSanctionsExclusion,
	StepEducationCredential,
	StepHospitalPrivilege,
}

// StepRequest carries the practitioner identifying data a step executor
// may consult. Each step kind reads only the fields its contract names;
// the transport layer validates presence before the request reaches an
// executor.
type StepRequest struct {
	ApplicationID int64  `json:"application_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	NPINumber     string `json:"npi_number,omitempty"`
	DEANumber     string `json:"dea_number,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	LicenseState  string `json:"license_state,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	Institution   string `json:"institution,omitempty"`
	HospitalName  string `json:"hospital_name,omitempty"`
	// DocumentText is the raw text of a supporting document (diploma,
	// transcript, claim narrative) consumed by the LLM-assisted steps.
	DocumentText string `json:"document_text,omitempty"`
}

// StepResult is the common response shape every step kind returns.
// Success reports whether the check itself completed; a practitioner
// absent from an authority's records is a successful negative finding,
// not an error. Findings hold the normalized payload for the step kind.
type StepResult struct {
	Step     StepName        `json:"step"`
	Success  bool            `json:"success"`
	Found    bool            `json:"found"`
	Findings json.RawMessage `json:"findings,omitempty"`
	Error    *string         `json:"error,omitempty"`
	Usage    *LLMUsage       `json:"usage,omitempty"`
}

// LLMUsage is the token accounting reported by the model adapter for
// steps that perform LLM-assisted extraction.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Application is the unit of work tracked through the status workflow.
// It aggregates the results of its verification steps; results never
// outlive the application.
type Application struct {
	ID            int64             `json:"id"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	NPINumber     string            `json:"npi_number,omitempty"`
	DEANumber     string            `json:"dea_number,omitempty"`
	LicenseNumber string            `json:"license_number,omitempty"`
	LicenseState  string            `json:"license_state,omitempty"`
	Specialty     string            `json:"specialty,omitempty"`
	Status        ApplicationStatus `json:"status"`
}

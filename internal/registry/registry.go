// Package registry holds the fixed catalog of verification steps. The
// catalog is built once at startup and is read-only thereafter; there is
// no runtime registration or deregistration.
package registry

import (
	"context"

	"credverify/internal/domain"
	"credverify/internal/faults"
	"credverify/internal/steps"
)

type StepFunc func(ctx context.Context, req domain.StepRequest) (domain.StepResult, error)

// VerificationStep is one catalog entry: the step's identifier, the
// request fields its contract reads, and its processing function. The
// contract is structural: any step kind may shape its findings as it
// needs so long as the result carries the common success/findings/error
// fields.
type VerificationStep struct {
	Name          domain.StepName
	Description   string
	RequestFields []string
	Run           StepFunc
}

type Registry struct {
	steps map[domain.StepName]VerificationStep
}

// New builds the catalog over the supplied executors. Exactly one entry
// exists per step kind.
func New(ex *steps.Executors) *Registry {
	entries := []VerificationStep{
		{
			Name:          domain.StepIdentifierLookup,
			Description:   "national provider identifier lookup",
			RequestFields: []string{"npi_number", "first_name", "last_name"},
			Run:           ex.IdentifierLookup,
		},
		{
			Name:          domain.StepControlledSubstanceReg,
			Description:   "controlled substance registration standing",
			RequestFields: []string{"dea_number", "last_name"},
			Run:           ex.ControlledSubstanceRegistration,
		},
		{
			Name:          domain.StepStateLicense,
			Description:   "state medical board license check",
			RequestFields: []string{"license_number", "license_state", "last_name"},
			Run:           ex.StateLicense,
		},
		{
			Name:          domain.StepBoardCertification,
			Description:   "specialty board certification check",
			RequestFields: []string{"first_name", "last_name", "specialty"},
			Run:           ex.BoardCertification,
		},
		{
			Name:          domain.StepMasterExclusionFile,
			Description:   "federal master exclusion file check",
			RequestFields: []string{"npi_number", "first_name", "last_name"},
			Run:           ex.MasterExclusionFile,
		},
		{
			Name:          domain.StepFederalInsuranceProg,
			Description:   "federal insurance program enrollment check",
			RequestFields: []string{"npi_number", "last_name"},
			Run:           ex.FederalInsuranceProgram,
		},
		{
			Name:          domain.StepMalpracticeHistory,
			Description:   "malpractice and medical history review",
			RequestFields: []string{"npi_number", "last_name", "license_state", "document_text"},
			Run:           ex.MalpracticeHistory,
		},
		{
			Name:          domain.StepDataBankQuery,
			Description:   "national practitioner data bank query",
			RequestFields: []string{"npi_number", "first_name", "last_name"},
			Run:           ex.DataBankQuery,
		},
		{
			Name:          domain.StepSanctionsExclusion,
			Description:   "federal sanctions and debarment check",
			RequestFields: []string{"npi_number", "first_name", "last_name"},
			Run:           ex.SanctionsExclusion,
		},
		{
			Name:          domain.StepEducationCredential,
			Description:   "medical education credential verification",
			RequestFields: []string{"first_name", "last_name", "institution", "document_text"},
			Run:           ex.EducationCredential,
		},
		{
			Name:          domain.StepHospitalPrivilege,
			Description:   "hospital privilege verification",
			RequestFields: []string{"first_name", "last_name", "hospital_name"},
			Run:           ex.HospitalPrivilege,
		},
	}

	catalog := make(map[domain.StepName]VerificationStep, len(entries))
	for _, entry := range entries {
		catalog[entry.Name] = entry
	}
	return &Registry{steps: catalog}
}

// Resolve returns the catalog entry for the named step. Unknown names
// fail with an InvalidArgument error naming the identifier.
func (r *Registry) Resolve(name domain.StepName) (VerificationStep, error) {
	step, ok := r.steps[name]
	if !ok {
		return VerificationStep{}, faults.InvalidArgumentf("unknown verification step %q", name)
	}
	return step, nil
}

// List returns a copy of the full catalog keyed by step identifier.
func (r *Registry) List() map[domain.StepName]VerificationStep {
	out := make(map[domain.StepName]VerificationStep, len(r.steps))
	for name, step := range r.steps {
		out[name] = step
	}
	return out
}

// Package steps implements the executor for each verification step kind.
// Executors are pure request-to-result mappings: they perform only reads
// against external systems and hold no state between invocations, so a
// caller may retry them freely.
package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"credverify/internal/authority"
	"credverify/internal/domain"
	"credverify/internal/faults"
	"credverify/internal/llm"
)

// Executors bundles the collaborators every step executor may draw on.
type Executors struct {
	Authorities *authority.Directory
	LLM         llm.Client
	Model       string
	LLMTimeout  time.Duration
}

// Execute runs the executor for the named step kind. Unknown step names
// are rejected by the registry before reaching here; this dispatch is
// over the closed enumeration only.
func (e *Executors) Execute(ctx context.Context, step domain.StepName, req domain.StepRequest) (domain.StepResult, error) {
	switch step {
	case domain.StepIdentifierLookup:
		return e.IdentifierLookup(ctx, req)
	case domain.StepControlledSubstanceReg:
		return e.ControlledSubstanceRegistration(ctx, req)
	case domain.StepStateLicense:
		return e.StateLicense(ctx, req)
	case domain.StepBoardCertification:
		return e.BoardCertification(ctx, req)
	case domain.StepMasterExclusionFile:
		return e.MasterExclusionFile(ctx, req)
	case domain.StepFederalInsuranceProg:
		return e.FederalInsuranceProgram(ctx, req)
	case domain.StepMalpracticeHistory:
		return e.MalpracticeHistory(ctx, req)
	case domain.StepDataBankQuery:
		return e.DataBankQuery(ctx, req)
	case domain.StepSanctionsExclusion:
		return e.SanctionsExclusion(ctx, req)
	case domain.StepEducationCredential:
		return e.EducationCredential(ctx, req)
	case domain.StepHospitalPrivilege:
		return e.HospitalPrivilege(ctx, req)
	default:
		return domain.StepResult{}, faults.InvalidArgumentf("unknown verification step %q", step)
	}
}

// IdentifierLookup checks the practitioner's NPI against the national
// registry. A registry record whose NPI fails the checksum is treated as
// malformed upstream data.
func (e *Executors) IdentifierLookup(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepIdentifierLookup, map[string]string{
		"number":     req.NPINumber,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepIdentifierLookup, "no registry record for the supplied identifier")
	}

	returned, _ := result.Record["number"].(string)
	if returned != "" && !domain.ValidNPI(returned) {
		return domain.StepResult{}, faults.Externalf(string(domain.StepIdentifierLookup), "malformed record",
			"registry returned identifier %q with invalid checksum", returned)
	}
	return positiveFinding(domain.StepIdentifierLookup, result.Record)
}

// ControlledSubstanceRegistration checks DEA registration standing.
func (e *Executors) ControlledSubstanceRegistration(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepControlledSubstanceReg, map[string]string{
		"registration_number": req.DEANumber,
		"last_name":           req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepControlledSubstanceReg, "no active controlled substance registration")
	}
	return positiveFinding(domain.StepControlledSubstanceReg, result.Record)
}

// StateLicense checks the medical license with the state board.
func (e *Executors) StateLicense(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepStateLicense, map[string]string{
		"license_number": req.LicenseNumber,
		"state":          req.LicenseState,
		"last_name":      req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepStateLicense, "no license on file with the state board")
	}
	return positiveFinding(domain.StepStateLicense, result.Record)
}

// BoardCertification checks specialty board certification.
func (e *Executors) BoardCertification(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepBoardCertification, map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"specialty":  req.Specialty,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepBoardCertification, "no board certification on record")
	}
	return positiveFinding(domain.StepBoardCertification, result.Record)
}

// MasterExclusionFile checks the federal exclusion list. Absence from
// the list is the desirable outcome; presence is still a successful
// check with a listed finding.
func (e *Executors) MasterExclusionFile(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	return e.exclusionCheck(ctx, domain.StepMasterExclusionFile, req)
}

// FederalInsuranceProgram checks federal insurance program participation
// and opt-out status.
func (e *Executors) FederalInsuranceProgram(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepFederalInsuranceProg, map[string]string{
		"npi":       req.NPINumber,
		"last_name": req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepFederalInsuranceProg, "practitioner not enrolled in the program")
	}
	return positiveFinding(domain.StepFederalInsuranceProg, result.Record)
}

// MalpracticeHistory extracts a structured claim summary from a claim
// narrative when one was supplied, otherwise queries the claims
// authority directly.
func (e *Executors) MalpracticeHistory(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	if req.DocumentText != "" {
		return e.extractFromDocument(ctx, domain.StepMalpracticeHistory, req)
	}
	result, err := e.query(ctx, domain.StepMalpracticeHistory, map[string]string{
		"npi":       req.NPINumber,
		"last_name": req.LastName,
		"state":     req.LicenseState,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepMalpracticeHistory, "no malpractice history on record")
	}
	return positiveFinding(domain.StepMalpracticeHistory, result.Record)
}

// DataBankQuery checks the national practitioner data bank for adverse
// action reports.
func (e *Executors) DataBankQuery(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepDataBankQuery, map[string]string{
		"npi":        req.NPINumber,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepDataBankQuery, "no adverse action reports on file")
	}
	return positiveFinding(domain.StepDataBankQuery, result.Record)
}

// SanctionsExclusion checks the federal sanctions and debarment list.
func (e *Executors) SanctionsExclusion(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	return e.exclusionCheck(ctx, domain.StepSanctionsExclusion, req)
}

// EducationCredential verifies the practitioner's medical education. If
// a diploma or transcript text was supplied, the structured record is
// extracted by the model under a schema-constrained output mode and
// checked against the domain rules; otherwise the registrar authority is
// queried directly.
func (e *Executors) EducationCredential(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	if req.DocumentText != "" {
		return e.extractFromDocument(ctx, domain.StepEducationCredential, req)
	}
	result, err := e.query(ctx, domain.StepEducationCredential, map[string]string{
		"first_name":  req.FirstName,
		"last_name":   req.LastName,
		"institution": req.Institution,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepEducationCredential, "registrar has no record of the credential")
	}
	return positiveFinding(domain.StepEducationCredential, result.Record)
}

// HospitalPrivilege checks current privileges with the named hospital.
func (e *Executors) HospitalPrivilege(ctx context.Context, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, domain.StepHospitalPrivilege, map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"hospital":   req.HospitalName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	if !result.Found {
		return negativeFinding(domain.StepHospitalPrivilege, "no privileges on file with the hospital")
	}
	return positiveFinding(domain.StepHospitalPrivilege, result.Record)
}

func (e *Executors) exclusionCheck(ctx context.Context, step domain.StepName, req domain.StepRequest) (domain.StepResult, error) {
	result, err := e.query(ctx, step, map[string]string{
		"npi":        req.NPINumber,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	findings, err := json.Marshal(map[string]any{
		"listed": result.Found,
		"record": result.Record,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	return domain.StepResult{
		Step:     step,
		Success:  true,
		Found:    result.Found,
		Findings: findings,
	}, nil
}

func (e *Executors) extractFromDocument(ctx context.Context, step domain.StepName, req domain.StepRequest) (domain.StepResult, error) {
	schema := domain.SchemaForStep(step)

	completion, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		Model:        e.Model,
		SystemPrompt: llm.EXTRACT_SYSTEM,
		UserPrompt:   llm.BuildExtractUserPrompt(string(step), schema, req.DocumentText),
		Mode:         llm.OutputModeSchema,
		SchemaName:   string(step),
		Schema:       schema,
		Timeout:      e.LLMTimeout,
	})
	if err != nil {
		return domain.StepResult{}, faults.External("model", err)
	}

	usage := domain.LLMUsage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}

	normalized, _, parseErr := llm.ParseAndNormalize(step, completion.Content)
	if parseErr != nil {
		return domain.StepResult{}, faults.Externalf("model", "schema violation",
			"extraction for step %s did not match its response contract: %v", step, parseErr)
	}

	validation, err := llm.ValidateByRules(step, normalized)
	if err != nil {
		return domain.StepResult{}, faults.External("model", err)
	}

	findings, err := json.Marshal(map[string]any{
		"extraction":   json.RawMessage(normalized),
		"failed_rules": validation.FailedRules,
		"confidence":   validation.Confidence,
	})
	if err != nil {
		return domain.StepResult{}, err
	}

	return domain.StepResult{
		Step:     step,
		Success:  true,
		Found:    true,
		Findings: findings,
		Usage:    &usage,
	}, nil
}

func (e *Executors) query(ctx context.Context, step domain.StepName, params map[string]string) (authority.Result, error) {
	adapter, ok := e.Authorities.For(step)
	if !ok {
		return authority.Result{}, faults.InvalidArgumentf("no authority adapter for step %q", step)
	}
	result, err := adapter.Query(ctx, params)
	if err != nil {
		var qe *authority.QueryError
		if errors.As(err, &qe) {
			status := qe.Detail
			if qe.StatusCode != 0 {
				status = fmt.Sprintf("status %d", qe.StatusCode)
				if qe.Detail != "" {
					status = fmt.Sprintf("status %d: %s", qe.StatusCode, qe.Detail)
				}
			}
			return authority.Result{}, &faults.ExternalServiceError{Service: adapter.Name(), Status: status, Err: err}
		}
		return authority.Result{}, faults.External(adapter.Name(), err)
	}
	return result, nil
}

func negativeFinding(step domain.StepName, detail string) (domain.StepResult, error) {
	findings, err := json.Marshal(map[string]any{
		"found":  false,
		"detail": detail,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	return domain.StepResult{
		Step:     step,
		Success:  true,
		Found:    false,
		Findings: findings,
	}, nil
}

func positiveFinding(step domain.StepName, record map[string]any) (domain.StepResult, error) {
	findings, err := json.Marshal(map[string]any{
		"found":  true,
		"record": record,
	})
	if err != nil {
		return domain.StepResult{}, err
	}
	return domain.StepResult{
		Step:     step,
		Success:  true,
		Found:    true,
		Findings: findings,
	}, nil
}

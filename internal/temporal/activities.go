package temporal

import (
	"context"
	"errors"
	"fmt"

	"credverify/internal/domain"
	"credverify/internal/faults"
	"credverify/internal/registry"
)

// StateManager is the status workflow surface the activities drive.
// Every call persists a transition and its paired audit entry.
type StateManager interface {
	SetInProgress(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error)
	SetReadyForReview(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error)
	Approve(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error)
	Reject(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error)
	SetOnHold(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error)
	ReappendAudit(ctx context.Context, event domain.AuditEvent) error
}

type ResultStore interface {
	SaveStepResult(ctx context.Context, applicationID int64, result domain.StepResult) error
	LatestDocumentText(ctx context.Context, applicationID int64) (string, error)
}

type Catalog interface {
	Resolve(name domain.StepName) (registry.VerificationStep, error)
}

type Activities struct {
	State   StateManager
	Results ResultStore
	Catalog Catalog
}

type BeginVerificationInput struct {
	ApplicationID int64
	ActorID       string
}

type RunVerificationStepInput struct {
	Step    domain.StepName
	Request domain.StepRequest
}

type RunVerificationStepOutput struct {
	Result domain.StepResult
}

type RecordStepFailureInput struct {
	ApplicationID int64
	Step          domain.StepName
	Reason        string
}

type MarkReadyForReviewInput struct {
	ApplicationID int64
	ActorID       string
}

type RecordDecisionInput struct {
	ApplicationID int64
	Decision      domain.DecisionType
	Reviewer      string
	Reason        string
}

type RecordDecisionOutput struct {
	Status domain.ApplicationStatus
}

func (a *Activities) BeginVerificationActivity(ctx context.Context, input BeginVerificationInput) error {
	_, err := a.State.SetInProgress(ctx, input.ApplicationID, input.ActorID, "")
	return a.settle(ctx, err)
}

// RunVerificationStepActivity resolves the named step and executes it.
// A result is persisted only when the check itself completed; authority
// outages propagate as activity errors so the retry policy applies.
func (a *Activities) RunVerificationStepActivity(ctx context.Context, input RunVerificationStepInput) (RunVerificationStepOutput, error) {
	step, err := a.Catalog.Resolve(input.Step)
	if err != nil {
		return RunVerificationStepOutput{}, err
	}

	req := input.Request
	if req.DocumentText == "" && needsDocument(input.Step) {
		// A missing document comes back as ("", nil); a non-nil error
		// means the store itself failed and the retry policy applies.
		text, err := a.Results.LatestDocumentText(ctx, req.ApplicationID)
		if err != nil {
			return RunVerificationStepOutput{}, fmt.Errorf("load supporting document for application %d: %w", req.ApplicationID, err)
		}
		req.DocumentText = text
	}

	result, err := step.Run(ctx, req)
	if err != nil {
		return RunVerificationStepOutput{}, err
	}
	if err := a.Results.SaveStepResult(ctx, req.ApplicationID, result); err != nil {
		return RunVerificationStepOutput{}, err
	}
	return RunVerificationStepOutput{Result: result}, nil
}

// RecordStepFailureActivity persists a failed result for a step whose
// retries were exhausted, so the review surface shows the gap instead of
// silently missing the step.
func (a *Activities) RecordStepFailureActivity(ctx context.Context, input RecordStepFailureInput) error {
	reason := input.Reason
	if reason == "" {
		reason = "verification step failed"
	}
	return a.Results.SaveStepResult(ctx, input.ApplicationID, domain.StepResult{
		Step:    input.Step,
		Success: false,
		Error:   &reason,
	})
}

func (a *Activities) MarkReadyForReviewActivity(ctx context.Context, input MarkReadyForReviewInput) error {
	_, err := a.State.SetReadyForReview(ctx, input.ApplicationID, input.ActorID, "")
	return a.settle(ctx, err)
}

func (a *Activities) RecordDecisionActivity(ctx context.Context, input RecordDecisionInput) (RecordDecisionOutput, error) {
	var (
		app domain.Application
		err error
	)
	switch input.Decision {
	case domain.DecisionApprove:
		app, err = a.State.Approve(ctx, input.ApplicationID, input.Reviewer, input.Reason)
	case domain.DecisionReject:
		app, err = a.State.Reject(ctx, input.ApplicationID, input.Reviewer, input.Reason)
	case domain.DecisionHold:
		app, err = a.State.SetOnHold(ctx, input.ApplicationID, input.Reviewer, input.Reason)
	case domain.DecisionResume:
		app, err = a.State.SetReadyForReview(ctx, input.ApplicationID, input.Reviewer, input.Reason)
	default:
		return RecordDecisionOutput{}, fmt.Errorf("unknown decision %q", input.Decision)
	}
	if err := a.settle(ctx, err); err != nil {
		return RecordDecisionOutput{}, err
	}
	return RecordDecisionOutput{Status: app.Status}, nil
}

// settle absorbs a partial commit by retrying the audit append with the
// original event id. The status write already landed, so a successful
// re-append makes the transition whole without a second status write.
func (a *Activities) settle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var partial *faults.PartialCommitError
	if errors.As(err, &partial) {
		return a.State.ReappendAudit(ctx, partial.Event)
	}
	return err
}

func needsDocument(step domain.StepName) bool {
	return step == domain.StepEducationCredential || step == domain.StepMalpracticeHistory
}

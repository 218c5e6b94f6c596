package temporal

import (
	"go.temporal.io/sdk/workflow"

	"credverify/internal/domain"
)

const CredentialVerificationWorkflowName = "CredentialVerificationWorkflow"

type WorkflowInput struct {
	ApplicationID int64
	ActorID       string
	Steps         []domain.StepName
	Request       domain.StepRequest
}

type WorkflowResult struct {
	ApplicationID int64
	Status        domain.ApplicationStatus
}

// CredentialVerificationWorkflow runs the verification steps for one
// application, parks it at ready_for_review, and waits for reviewer
// decision signals. Hold and resume keep the workflow alive; approve and
// reject end it.
func CredentialVerificationWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	steps := input.Steps
	if len(steps) == 0 {
		steps = domain.KnownStepNames
	}

	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyBeginVerification),
		(*Activities).BeginVerificationActivity,
		BeginVerificationInput{ApplicationID: input.ApplicationID, ActorID: input.ActorID},
	).Get(ctx, nil); err != nil {
		return WorkflowResult{}, err
	}

	for _, step := range steps {
		var out RunVerificationStepOutput
		err := workflow.ExecuteActivity(
			mustActivityContext(ctx, policyForStep(step)),
			(*Activities).RunVerificationStepActivity,
			RunVerificationStepInput{Step: step, Request: input.Request},
		).Get(ctx, &out)
		if err == nil {
			continue
		}

		if recErr := workflow.ExecuteActivity(
			mustActivityContext(ctx, ActivityPolicyRecordStepFailure),
			(*Activities).RecordStepFailureActivity,
			RecordStepFailureInput{ApplicationID: input.ApplicationID, Step: step, Reason: err.Error()},
		).Get(ctx, nil); recErr != nil {
			return WorkflowResult{}, recErr
		}
	}

	if err := workflow.ExecuteActivity(
		mustActivityContext(ctx, ActivityPolicyMarkReadyForReview),
		(*Activities).MarkReadyForReviewActivity,
		MarkReadyForReviewInput{ApplicationID: input.ApplicationID, ActorID: input.ActorID},
	).Get(ctx, nil); err != nil {
		return WorkflowResult{}, err
	}

	signalChan := workflow.GetSignalChannel(ctx, DecisionSignalName)
	for {
		var decision DecisionSignal
		signalChan.Receive(ctx, &decision)

		switch decision.Decision {
		case domain.DecisionApprove, domain.DecisionReject, domain.DecisionHold, domain.DecisionResume:
		default:
			continue
		}

		var recorded RecordDecisionOutput
		if err := workflow.ExecuteActivity(
			mustActivityContext(ctx, ActivityPolicyRecordDecision),
			(*Activities).RecordDecisionActivity,
			RecordDecisionInput{
				ApplicationID: input.ApplicationID,
				Decision:      decision.Decision,
				Reviewer:      decision.Reviewer,
				Reason:        decision.Reason,
			},
		).Get(ctx, &recorded); err != nil {
			return WorkflowResult{}, err
		}

		if decision.Decision == domain.DecisionApprove || decision.Decision == domain.DecisionReject {
			return WorkflowResult{ApplicationID: input.ApplicationID, Status: recorded.Status}, nil
		}
	}
}

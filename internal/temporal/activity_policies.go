package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"credverify/internal/domain"
)

const (
	ActivityPolicyBeginVerification  = "begin_verification"
	ActivityPolicyRunStep            = "run_verification_step"
	ActivityPolicyRunStepWithModel   = "run_verification_step_with_model"
	ActivityPolicyRecordStepFailure  = "record_step_failure"
	ActivityPolicyMarkReadyForReview = "mark_ready_for_review"
	ActivityPolicyRecordDecision     = "record_decision"
)

type activityPolicy struct {
	StartToCloseTimeout time.Duration
	RetryPolicy         temporal.RetryPolicy
}

var activityPolicies = map[string]activityPolicy{
	ActivityPolicyBeginVerification: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
	ActivityPolicyRunStep: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
	ActivityPolicyRunStepWithModel: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	},
	ActivityPolicyRecordStepFailure: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
	ActivityPolicyMarkReadyForReview: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
	ActivityPolicyRecordDecision: {
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	},
}

func ActivityOptionsFor(policyName string) (workflow.ActivityOptions, error) {
	policy, ok := activityPolicies[policyName]
	if !ok {
		return workflow.ActivityOptions{}, fmt.Errorf("unknown activity policy: %s", policyName)
	}

	retry := policy.RetryPolicy
	return workflow.ActivityOptions{
		StartToCloseTimeout: policy.StartToCloseTimeout,
		RetryPolicy:         &retry,
	}, nil
}

// policyForStep picks the retry posture per step kind. Model-backed
// steps run a single attempt so a schema violation is not replayed
// against the model three times.
func policyForStep(step domain.StepName) string {
	switch step {
	case domain.StepEducationCredential, domain.StepMalpracticeHistory:
		return ActivityPolicyRunStepWithModel
	default:
		return ActivityPolicyRunStep
	}
}

func mustActivityContext(ctx workflow.Context, policyName string) workflow.Context {
	ao, err := ActivityOptionsFor(policyName)
	if err != nil {
		panic(err)
	}
	return workflow.WithActivityOptions(ctx, ao)
}

package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"credverify/internal/domain"
)

func registerAll(env *testsuite.TestWorkflowEnvironment, acts *Activities) {
	env.RegisterWorkflow(CredentialVerificationWorkflow)
	env.RegisterActivity(acts.BeginVerificationActivity)
	env.RegisterActivity(acts.RunVerificationStepActivity)
	env.RegisterActivity(acts.RecordStepFailureActivity)
	env.RegisterActivity(acts.MarkReadyForReviewActivity)
	env.RegisterActivity(acts.RecordDecisionActivity)
}

func TestCredentialVerificationWorkflow_Approve(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	state := newFakeState()
	results := newFakeResults()
	catalog := newFakeCatalog()
	catalog.on(domain.StepIdentifierLookup, passingStep(domain.StepIdentifierLookup, true))
	catalog.on(domain.StepStateLicense, passingStep(domain.StepStateLicense, true))
	catalog.on(domain.StepSanctionsExclusion, passingStep(domain.StepSanctionsExclusion, false))

	acts := &Activities{State: state, Results: results, Catalog: catalog}
	registerAll(env, acts)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(DecisionSignalName, DecisionSignal{
			Decision: domain.DecisionApprove,
			Reviewer: "qa",
		})
	}, time.Second)

	env.ExecuteWorkflow(CredentialVerificationWorkflow, WorkflowInput{
		ApplicationID: 42,
		ActorID:       "intake-service",
		Steps:         []domain.StepName{domain.StepIdentifierLookup, domain.StepStateLicense, domain.StepSanctionsExclusion},
		Request:       domain.StepRequest{ApplicationID: 42, FirstName: "Ana", LastName: "Reyes", NPINumber: "1234567893"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, int64(42), result.ApplicationID)
	require.Equal(t, domain.StatusApproved, result.Status)

	require.Equal(t, []domain.ApplicationStatus{
		domain.StatusInProgress,
		domain.StatusReadyForReview,
		domain.StatusApproved,
	}, state.transitions)
	require.Len(t, results.results[42], 3)
}

func TestCredentialVerificationWorkflow_HoldThenResumeThenReject(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	state := newFakeState()
	catalog := newFakeCatalog()
	catalog.on(domain.StepIdentifierLookup, passingStep(domain.StepIdentifierLookup, true))

	acts := &Activities{State: state, Results: newFakeResults(), Catalog: catalog}
	registerAll(env, acts)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(DecisionSignalName, DecisionSignal{Decision: domain.DecisionHold, Reviewer: "qa", Reason: "awaiting transcript"})
	}, time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(DecisionSignalName, DecisionSignal{Decision: domain.DecisionResume, Reviewer: "qa"})
	}, 2*time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(DecisionSignalName, DecisionSignal{Decision: domain.DecisionReject, Reviewer: "qa", Reason: "license lapsed"})
	}, 3*time.Second)

	env.ExecuteWorkflow(CredentialVerificationWorkflow, WorkflowInput{
		ApplicationID: 43,
		ActorID:       "intake-service",
		Steps:         []domain.StepName{domain.StepIdentifierLookup},
		Request:       domain.StepRequest{ApplicationID: 43, FirstName: "Ana", LastName: "Reyes"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result WorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, domain.StatusRejected, result.Status)

	require.Equal(t, []domain.ApplicationStatus{
		domain.StatusInProgress,
		domain.StatusReadyForReview,
		domain.StatusOnHold,
		domain.StatusReadyForReview,
		domain.StatusRejected,
	}, state.transitions)
}

func TestCredentialVerificationWorkflow_StepFailureRecorded(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	state := newFakeState()
	results := newFakeResults()
	catalog := newFakeCatalog()
	catalog.on(domain.StepIdentifierLookup, passingStep(domain.StepIdentifierLookup, true))
	// state_license is absent from the catalog, so the step activity
	// fails every attempt and the failure is recorded instead.

	acts := &Activities{State: state, Results: results, Catalog: catalog}
	registerAll(env, acts)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(DecisionSignalName, DecisionSignal{Decision: domain.DecisionApprove, Reviewer: "qa"})
	}, time.Second)

	env.ExecuteWorkflow(CredentialVerificationWorkflow, WorkflowInput{
		ApplicationID: 44,
		ActorID:       "intake-service",
		Steps:         []domain.StepName{domain.StepIdentifierLookup, domain.StepStateLicense},
		Request:       domain.StepRequest{ApplicationID: 44, FirstName: "Ana", LastName: "Reyes"},
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	saved := results.results[44]
	require.Len(t, saved, 2)
	require.True(t, saved[0].Success)
	require.False(t, saved[1].Success)
	require.Equal(t, domain.StepStateLicense, saved[1].Step)
	require.NotNil(t, saved[1].Error)
}

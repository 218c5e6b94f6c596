package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"credverify/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	beginIn    *BeginVerificationInput
	stepIns    []RunVerificationStepInput
	stepOuts   []RunVerificationStepOutput
	reviewIn   *MarkReadyForReviewInput
	decisionIn *RecordDecisionInput

	failureCalls int
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

var _ = Describe("CredentialVerificationWorkflow blackbox happy path", func() {
	It("runs every requested step, parks for review, and completes on an approve signal", func() {
		var suite testsuite.WorkflowTestSuite
		env := suite.NewTestWorkflowEnvironment()

		state := newFakeState()
		results := newFakeResults()
		catalog := newFakeCatalog()
		requestedSteps := []domain.StepName{
			domain.StepIdentifierLookup,
			domain.StepStateLicense,
			domain.StepMasterExclusionFile,
		}
		catalog.on(domain.StepIdentifierLookup, passingStep(domain.StepIdentifierLookup, true))
		catalog.on(domain.StepStateLicense, passingStep(domain.StepStateLicense, true))
		catalog.on(domain.StepMasterExclusionFile, passingStep(domain.StepMasterExclusionFile, false))

		acts := &Activities{State: state, Results: results, Catalog: catalog}

		trace := &activityTrace{}

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			trace.recordStarted(info.ActivityType.Name)

			switch info.ActivityType.Name {
			case "BeginVerificationActivity":
				var in BeginVerificationInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.beginIn = &in
				trace.mu.Unlock()
			case "RunVerificationStepActivity":
				var in RunVerificationStepInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.stepIns = append(trace.stepIns, in)
				trace.mu.Unlock()
			case "MarkReadyForReviewActivity":
				var in MarkReadyForReviewInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.reviewIn = &in
				trace.mu.Unlock()
			case "RecordDecisionActivity":
				var in RecordDecisionInput
				_ = args.Get(&in)
				trace.mu.Lock()
				trace.decisionIn = &in
				trace.mu.Unlock()
			case "RecordStepFailureActivity":
				trace.mu.Lock()
				trace.failureCalls++
				trace.mu.Unlock()
			}
		})

		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
			trace.recordCompleted(info.ActivityType.Name)

			if info.ActivityType.Name == "RunVerificationStepActivity" {
				var out RunVerificationStepOutput
				_ = result.Get(&out)
				trace.mu.Lock()
				trace.stepOuts = append(trace.stepOuts, out)
				trace.mu.Unlock()
			}
		})

		registerAll(env, acts)

		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(DecisionSignalName, DecisionSignal{
				Decision: domain.DecisionApprove,
				Reviewer: "medical-director",
				Reason:   "all checks clear",
			})
		}, time.Second)

		By("triggering the workflow execution")
		env.ExecuteWorkflow(CredentialVerificationWorkflow, WorkflowInput{
			ApplicationID: 501,
			ActorID:       "intake-service",
			Steps:         requestedSteps,
			Request: domain.StepRequest{
				ApplicationID: 501,
				FirstName:     "Ana",
				LastName:      "Reyes",
				NPINumber:     "1234567893",
				LicenseNumber: "MD-44821",
				LicenseState:  "CA",
			},
		})

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var wfResult WorkflowResult
		Expect(env.GetWorkflowResult(&wfResult)).To(Succeed())
		Expect(wfResult.ApplicationID).To(Equal(int64(501)))
		Expect(wfResult.Status).To(Equal(domain.StatusApproved))

		By("validating activity ordering for the happy path")
		Expect(trace.startedOrder).To(Equal([]string{
			"BeginVerificationActivity",
			"RunVerificationStepActivity",
			"RunVerificationStepActivity",
			"RunVerificationStepActivity",
			"MarkReadyForReviewActivity",
			"RecordDecisionActivity",
		}))
		Expect(trace.completedOrder).To(Equal(trace.startedOrder))
		Expect(trace.failureCalls).To(Equal(0))

		Expect(trace.beginIn).ToNot(BeNil())
		Expect(trace.beginIn.ApplicationID).To(Equal(int64(501)))
		Expect(trace.beginIn.ActorID).To(Equal("intake-service"))

		Expect(trace.stepIns).To(HaveLen(3))
		for i, in := range trace.stepIns {
			Expect(in.Step).To(Equal(requestedSteps[i]))
			Expect(in.Request.NPINumber).To(Equal("1234567893"))
		}

		Expect(trace.stepOuts).To(HaveLen(3))
		Expect(trace.stepOuts[0].Result.Found).To(BeTrue())
		Expect(trace.stepOuts[2].Result.Found).To(BeFalse())
		for _, out := range trace.stepOuts {
			Expect(out.Result.Success).To(BeTrue())
		}

		Expect(trace.reviewIn).ToNot(BeNil())
		Expect(trace.reviewIn.ApplicationID).To(Equal(int64(501)))

		Expect(trace.decisionIn).ToNot(BeNil())
		Expect(trace.decisionIn.Decision).To(Equal(domain.DecisionApprove))
		Expect(trace.decisionIn.Reviewer).To(Equal("medical-director"))

		By("validating persisted side effects")
		state.mu.Lock()
		transitions := append([]domain.ApplicationStatus(nil), state.transitions...)
		state.mu.Unlock()
		Expect(transitions).To(Equal([]domain.ApplicationStatus{
			domain.StatusInProgress,
			domain.StatusReadyForReview,
			domain.StatusApproved,
		}))

		results.mu.Lock()
		saved := append([]domain.StepResult(nil), results.results[501]...)
		results.mu.Unlock()
		Expect(saved).To(HaveLen(3))
	})
})

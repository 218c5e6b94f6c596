//go:build system

package system_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"credverify/internal/domain"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIHealthPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(strings.TrimRight(cfg.APIBaseURL, "/")+cfg.APIReadyPath, 200, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
		Expect(applyMigration(repoRoot, cfg.PostgresDSN)).To(Succeed())
	})

	It("verifies a practitioner end to end through a real worker and approves the application", func() {
		apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")
		requestedSteps := []string{
			string(domain.StepIdentifierLookup),
			string(domain.StepStateLicense),
			string(domain.StepMasterExclusionFile),
		}

		By("creating an application exactly like an intake client")
		app, err := createApplication(apiBaseURL, map[string]any{
			"first_name":     "Ana",
			"last_name":      "Reyes",
			"npi_number":     "1234567893",
			"license_number": "MD-44821",
			"license_state":  "CA",
			"specialty":      "cardiology",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(app.ID).To(BeNumerically(">", 0))
		Expect(app.Status).To(Equal(domain.StatusDraft))

		By("uploading a supporting document")
		filePath := filepath.Join(repoRoot, cfg.UploadFixturePath)
		upload, err := uploadFile(apiBaseURL, app.ID, filePath)
		Expect(err).ToNot(HaveOccurred())
		Expect(upload.DocumentID).ToNot(BeEmpty())
		Expect(upload.ObjectKey).To(ContainSubstring("/"))

		By("starting verification over a subset of the catalog")
		verify, err := startVerification(apiBaseURL, app.ID, map[string]any{
			"steps":    requestedSteps,
			"actor_id": "system-test",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(verify.WorkflowID).ToNot(BeEmpty())

		By("polling until the application parks at ready_for_review")
		Eventually(func() domain.ApplicationStatus {
			status, statusErr := getStatus(apiBaseURL, app.ID)
			Expect(statusErr).ToNot(HaveOccurred())
			return status.Status
		}, cfg.WorkflowPhaseTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StatusReadyForReview))

		By("checking the persisted step results")
		results, err := getResults(apiBaseURL, app.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(results.Results).To(HaveLen(len(requestedSteps)))
		for _, res := range results.Results {
			Expect(res.Success).To(BeTrue())
		}

		By("approving the application through the decision endpoint")
		Expect(submitDecision(apiBaseURL, app.ID, map[string]any{
			"decision": "approve",
			"reviewer": "medical-director",
			"reason":   "all checks clear",
		})).To(Succeed())

		Eventually(func() domain.ApplicationStatus {
			status, statusErr := getStatus(apiBaseURL, app.ID)
			Expect(statusErr).ToNot(HaveOccurred())
			return status.Status
		}, cfg.WorkflowPhaseTimeout, cfg.WorkflowPollInterval).Should(Equal(domain.StatusApproved))

		By("validating activity ordering from Temporal workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		trace, err := collectActivityTrace(context.Background(), temporalClient, verify.WorkflowID)
		Expect(err).ToNot(HaveOccurred())

		expectedOrder := []string{
			"BeginVerificationActivity",
			"RunVerificationStepActivity",
			"RunVerificationStepActivity",
			"RunVerificationStepActivity",
			"MarkReadyForReviewActivity",
			"RecordDecisionActivity",
		}
		Expect(trace.ScheduledOrder).To(Equal(expectedOrder))
		Expect(trace.CompletedOrder).To(Equal(expectedOrder))

		Expect(trace.StepInputs).To(HaveLen(3))
		for i, in := range trace.StepInputs {
			Expect(string(in.Step)).To(Equal(requestedSteps[i]))
			Expect(in.Request.ApplicationID).To(Equal(app.ID))
			Expect(in.Request.NPINumber).To(Equal("1234567893"))
		}
		Expect(trace.StepOutputs).To(HaveLen(3))
		for _, out := range trace.StepOutputs {
			Expect(out.Result.Success).To(BeTrue())
		}

		Expect(trace.DecisionInput).ToNot(BeNil())
		Expect(trace.DecisionInput.Decision).To(Equal(domain.DecisionApprove))
		Expect(trace.DecisionInput.Reviewer).To(Equal("medical-director"))

		By("verifying the audit trail in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.Ping()).To(Succeed())

		actions, err := fetchStringRows(db, `SELECT action FROM audit_log WHERE application_id = $1 ORDER BY created_at`, app.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(actions).To(ContainElement("application status changed to in_progress"))
		Expect(actions).To(ContainElement("application status changed to ready_for_review"))
		Expect(actions).To(ContainElement("application status changed to approved"))

		sources, err := fetchStringRows(db, `SELECT DISTINCT source FROM audit_log WHERE application_id = $1`, app.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(sources).To(ConsistOf("application_state_manager"))
	})
})

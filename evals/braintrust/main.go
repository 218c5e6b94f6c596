// Command braintrust runs the credential verification API against a set
// of practitioner cases and scores the outcomes in Braintrust. It talks
// to the service purely over HTTP, the same way an intake client would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	braintrust "github.com/braintrustdata/braintrust-sdk-go"
	"github.com/braintrustdata/braintrust-sdk-go/eval"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	statusReadyForReview = "ready_for_review"
	statusApproved       = "approved"
	statusRejected       = "rejected"
	statusOnHold         = "on_hold"
)

type evalInput struct {
	Name          string   `json:"name"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	NPINumber     string   `json:"npi_number,omitempty"`
	DEANumber     string   `json:"dea_number,omitempty"`
	LicenseNumber string   `json:"license_number,omitempty"`
	LicenseState  string   `json:"license_state,omitempty"`
	Specialty     string   `json:"specialty,omitempty"`
	Steps         []string `json:"steps"`
	DocumentPath  string   `json:"document_path,omitempty"`
}

type stepOutcome struct {
	Step     string         `json:"step"`
	Success  bool           `json:"success"`
	Found    bool           `json:"found"`
	Findings map[string]any `json:"findings,omitempty"`
	Error    *string        `json:"error,omitempty"`
}

type evalOutput struct {
	ApplicationID int64          `json:"application_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	Results       []stepOutcome  `json:"results,omitempty"`
	ExpectedFound map[string]any `json:"expected_found,omitempty"`
	MinConfidence float64        `json:"min_confidence,omitempty"`
}

type rawCase struct {
	Input    evalInput  `json:"input"`
	Expected evalOutput `json:"expected"`
}

type config struct {
	APIURL         string
	CasesPath      string
	Project        string
	Experiment     string
	AutoApprove    bool
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	Parallelism    int
}

type evalRunner struct {
	cfg    config
	client *http.Client
}

type applicationResponse struct {
	ID int64 `json:"id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resultsResponse struct {
	Results []stepOutcome `json:"results"`
}

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		fail(err)
	}

	if strings.TrimSpace(os.Getenv("BRAINTRUST_API_KEY")) == "" {
		fail(errors.New("BRAINTRUST_API_KEY is required"))
	}

	cases, err := loadCases(cfg.CasesPath)
	if err != nil {
		fail(err)
	}

	runner := &evalRunner{
		cfg:    cfg,
		client: &http.Client{},
	}

	if err := runner.healthCheck(ctx); err != nil {
		fail(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	bt, err := braintrust.New(
		tp,
		braintrust.WithProject(cfg.Project),
		braintrust.WithBlockingLogin(true),
	)
	if err != nil {
		fail(fmt.Errorf("failed to initialize Braintrust: %w", err))
	}

	evaluator := braintrust.NewEvaluator[evalInput, evalOutput](bt)

	result, err := evaluator.Run(ctx, eval.Opts[evalInput, evalOutput]{
		Experiment: cfg.Experiment,
		Dataset:    eval.NewDataset(cases),
		Task:       eval.T(runner.runCase),
		Scorers: []eval.Scorer[evalInput, evalOutput]{
			eval.NewScorer("final_status", scoreFinalStatus),
			eval.NewScorer("step_completion", scoreStepCompletion),
			eval.NewScorer("found_accuracy", scoreFoundAccuracy),
			eval.NewScorer("extraction_schema", scoreExtractionSchema),
			eval.NewScorer("extraction_rules", scoreExtractionRules),
			eval.NewScorer("confidence_threshold", scoreConfidenceThreshold),
		},
		Tags: []string{"credential-verification", "workflow-api"},
		Metadata: map[string]any{
			"service":          "credverify",
			"api_url":          cfg.APIURL,
			"auto_approve":     cfg.AutoApprove,
			"poll_timeout_sec": int(cfg.PollTimeout.Seconds()),
		},
		Parallelism: cfg.Parallelism,
	})
	if err != nil {
		fail(fmt.Errorf("eval run failed: %w", err))
	}

	if runErr := result.Error(); runErr != nil {
		fail(fmt.Errorf("eval completed with errors: %w", runErr))
	}

	if link, err := result.Permalink(); err == nil && link != "" {
		fmt.Println("Braintrust report:", link)
	}

	fmt.Println(result.String())
}

func loadConfig() (config, error) {
	cfg := config{
		APIURL:         getenv("EVAL_API_URL", "http://localhost:8080"),
		CasesPath:      getenv("EVAL_CASES_PATH", "cases.json"),
		Project:        getenv("BRAINTRUST_PROJECT", "credverify"),
		Experiment:     getenv("EVAL_EXPERIMENT", "credential-verification-eval"),
		AutoApprove:    getenvBool("EVAL_AUTO_APPROVE", false),
		PollInterval:   time.Duration(getenvInt("EVAL_POLL_INTERVAL_SEC", 2)) * time.Second,
		PollTimeout:    time.Duration(getenvInt("EVAL_POLL_TIMEOUT_SEC", 180)) * time.Second,
		RequestTimeout: time.Duration(getenvInt("EVAL_REQUEST_TIMEOUT_SEC", 20)) * time.Second,
		Parallelism:    getenvInt("EVAL_PARALLELISM", 1),
	}

	if cfg.PollInterval <= 0 {
		return config{}, errors.New("EVAL_POLL_INTERVAL_SEC must be > 0")
	}
	if cfg.PollTimeout <= 0 {
		return config{}, errors.New("EVAL_POLL_TIMEOUT_SEC must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return config{}, errors.New("EVAL_REQUEST_TIMEOUT_SEC must be > 0")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	return cfg, nil
}

func loadCases(path string) ([]eval.Case[evalInput, evalOutput], error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases file %s: %w", resolved, err)
	}

	var raw []rawCase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases file %s: %w", resolved, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cases file is empty: %s", resolved)
	}

	cases := make([]eval.Case[evalInput, evalOutput], 0, len(raw))
	for _, row := range raw {
		cases = append(cases, eval.Case[evalInput, evalOutput]{
			Input:    row.Input,
			Expected: row.Expected,
			Metadata: map[string]any{"name": row.Input.Name, "steps": row.Input.Steps},
		})
	}
	return cases, nil
}

func (r *evalRunner) runCase(ctx context.Context, input evalInput) (evalOutput, error) {
	applicationID, err := r.createApplication(ctx, input)
	if err != nil {
		return evalOutput{}, err
	}

	if input.DocumentPath != "" {
		docPath, err := resolvePath(input.DocumentPath)
		if err != nil {
			return evalOutput{}, err
		}
		if err := r.uploadDocument(ctx, applicationID, docPath); err != nil {
			return evalOutput{}, err
		}
	}

	if err := r.startVerification(ctx, applicationID, input.Steps); err != nil {
		return evalOutput{}, err
	}

	deadline := time.Now().Add(r.cfg.PollTimeout)
	approveSent := false

	for {
		status, err := r.getStatus(ctx, applicationID)
		if err != nil {
			return evalOutput{}, err
		}

		s := strings.ToLower(status.Status)
		if s == statusReadyForReview && r.cfg.AutoApprove && !approveSent {
			if err := r.sendDecision(ctx, applicationID, "approve"); err != nil {
				return evalOutput{}, err
			}
			approveSent = true
		}

		terminal := s == statusApproved || s == statusRejected || s == statusOnHold ||
			(s == statusReadyForReview && !r.cfg.AutoApprove)
		if terminal {
			results, err := r.getResults(ctx, applicationID)
			if err != nil {
				return evalOutput{}, err
			}
			return evalOutput{
				ApplicationID: applicationID,
				Status:        s,
				Results:       results.Results,
			}, nil
		}

		if time.Now().After(deadline) {
			return evalOutput{}, fmt.Errorf("timed out waiting for application %d", applicationID)
		}

		select {
		case <-ctx.Done():
			return evalOutput{}, ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

func (r *evalRunner) healthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := r.doJSON(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if strings.ToLower(resp.Status) != "ok" {
		return fmt.Errorf("health check returned non-ok status: %s", resp.Status)
	}
	return nil
}

func (r *evalRunner) createApplication(ctx context.Context, input evalInput) (int64, error) {
	payload := map[string]any{
		"first_name":     input.FirstName,
		"last_name":      input.LastName,
		"npi_number":     input.NPINumber,
		"dea_number":     input.DEANumber,
		"license_number": input.LicenseNumber,
		"license_state":  input.LicenseState,
		"specialty":      input.Specialty,
	}
	var out applicationResponse
	if err := r.doJSON(ctx, http.MethodPost, "/v1/applications", payload, &out); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, fmt.Errorf("create application returned no id")
	}
	return out.ID, nil
}

func (r *evalRunner) uploadDocument(ctx context.Context, applicationID int64, filePath string) error {
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return fmt.Errorf("failed to write multipart file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/applications/%d/documents", strings.TrimRight(r.cfg.APIURL, "/"), applicationID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upload response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

func (r *evalRunner) startVerification(ctx context.Context, applicationID int64, steps []string) error {
	payload := map[string]any{
		"steps":    steps,
		"actor_id": "braintrust-eval",
	}
	return r.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/applications/%d/verify", applicationID), payload, nil)
}

func (r *evalRunner) getStatus(ctx context.Context, applicationID int64) (statusResponse, error) {
	var out statusResponse
	err := r.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/applications/%d/status", applicationID), nil, &out)
	if err != nil {
		return statusResponse{}, err
	}
	return out, nil
}

func (r *evalRunner) getResults(ctx context.Context, applicationID int64) (resultsResponse, error) {
	var out resultsResponse
	err := r.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/applications/%d/results", applicationID), nil, &out)
	if err != nil {
		return resultsResponse{}, err
	}
	return out, nil
}

func (r *evalRunner) sendDecision(ctx context.Context, applicationID int64, decision string) error {
	payload := map[string]any{
		"decision": decision,
		"reviewer": "braintrust-eval",
		"reason":   "auto-approve for eval progression",
	}
	return r.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/applications/%d/decision", applicationID), payload, nil)
}

func (r *evalRunner) doJSON(ctx context.Context, method, path string, in any, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(r.cfg.APIURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode failed: %w (payload=%s)", err, string(payload))
		}
	}
	return nil
}

func scoreFinalStatus(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := strings.ToLower(strings.TrimSpace(tr.Expected.Status))
	if expected == "" {
		expected = statusReadyForReview
	}
	if strings.ToLower(strings.TrimSpace(tr.Output.Status)) == expected {
		return eval.S(1), nil
	}
	return eval.S(0), nil
}

func scoreStepCompletion(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	if len(tr.Input.Steps) == 0 || len(tr.Output.Results) == 0 {
		return eval.S(0), nil
	}
	succeeded := 0
	for _, res := range tr.Output.Results {
		if res.Success {
			succeeded++
		}
	}
	return eval.S(float64(succeeded) / float64(len(tr.Input.Steps))), nil
}

// scoreFoundAccuracy compares the found flag per step against the
// expected_found map in the case, so a practitioner who should be absent
// from exclusion lists is scored down when the service reports a hit.
func scoreFoundAccuracy(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	expected := tr.Expected.ExpectedFound
	if len(expected) == 0 {
		return eval.S(0), nil
	}

	actual := make(map[string]bool, len(tr.Output.Results))
	for _, res := range tr.Output.Results {
		actual[res.Step] = res.Found
	}

	matched := 0
	total := 0
	for step, want := range expected {
		total++
		wantBool, ok := want.(bool)
		if !ok {
			continue
		}
		if got, ok := actual[step]; ok && got == wantBool {
			matched++
		}
	}
	if total == 0 {
		return eval.S(0), nil
	}
	return eval.S(float64(matched) / float64(total)), nil
}

func scoreExtractionSchema(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	checked := 0
	passed := 0
	for _, res := range tr.Output.Results {
		spec := schemaSpecForStep(res.Step)
		if spec == nil {
			continue
		}
		checked++
		extraction, ok := res.Findings["extraction"].(map[string]any)
		if !ok {
			continue
		}
		if conformsTo(extraction, spec) {
			passed++
		}
	}
	if checked == 0 {
		return eval.S(1), nil
	}
	return eval.S(float64(passed) / float64(checked)), nil
}

func scoreExtractionRules(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	checked := 0
	passed := 0
	for _, res := range tr.Output.Results {
		if schemaSpecForStep(res.Step) == nil {
			continue
		}
		checked++
		failed, ok := res.Findings["failed_rules"].([]any)
		if !ok || len(failed) == 0 {
			passed++
		}
	}
	if checked == 0 {
		return eval.S(1), nil
	}
	return eval.S(float64(passed) / float64(checked)), nil
}

func scoreConfidenceThreshold(_ context.Context, tr eval.TaskResult[evalInput, evalOutput]) (eval.Scores, error) {
	threshold := tr.Expected.MinConfidence
	if threshold <= 0 {
		threshold = 0.75
	}

	checked := 0
	passed := 0
	for _, res := range tr.Output.Results {
		if schemaSpecForStep(res.Step) == nil {
			continue
		}
		checked++
		confidence, ok := asFloat(res.Findings["confidence"])
		if ok && confidence >= threshold {
			passed++
		}
	}
	if checked == 0 {
		return eval.S(1), nil
	}
	return eval.S(float64(passed) / float64(checked)), nil
}

type schemaSpec struct {
	Required map[string]struct{}
	Optional map[string]struct{}
}

func schemaSpecForStep(step string) *schemaSpec {
	switch step {
	case "education_credential":
		return &schemaSpec{
			Required: toSet([]string{"institution", "degree", "field_of_study", "graduation_year", "confidence"}),
			Optional: toSet([]string{"honors"}),
		}
	case "malpractice_history":
		return &schemaSpec{
			Required: toSet([]string{"claim_count", "open_claims", "total_paid", "confidence"}),
			Optional: toSet([]string{"most_recent_claim_year"}),
		}
	default:
		return nil
	}
}

func conformsTo(extraction map[string]any, spec *schemaSpec) bool {
	for k := range spec.Required {
		if _, ok := extraction[k]; !ok {
			return false
		}
	}
	for k := range extraction {
		if _, ok := spec.Required[k]; ok {
			continue
		}
		if _, ok := spec.Optional[k]; ok {
			continue
		}
		return false
	}
	return true
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("path not found: %s", path)
	}

	candidates := []string{
		path,
		filepath.Join("..", "..", path),
	}

	for _, c := range candidates {
		absPath, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("path not found: %s", path)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "1") || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

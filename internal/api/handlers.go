package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"credverify/internal/appstate"
	"credverify/internal/config"
	"credverify/internal/domain"
	"credverify/internal/faults"
	"credverify/internal/registry"
	"credverify/internal/storage"
	appTemporal "credverify/internal/temporal"
)

type Handler struct {
	cfg            config.Config
	store          *storage.PostgresStore
	blob           uploadBlobStore
	state          *appstate.Manager
	catalog        *registry.Registry
	temporalClient client.Client
}

type uploadBlobStore interface {
	PutSupportingDocument(ctx context.Context, applicationID int64, filename string, content []byte) (string, error)
}

type createApplicationRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	NPINumber     string `json:"npi_number,omitempty"`
	DEANumber     string `json:"dea_number,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	LicenseState  string `json:"license_state,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
}

type verifyRequest struct {
	Steps        []domain.StepName `json:"steps,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	HospitalName string            `json:"hospital_name,omitempty"`
	Institution  string            `json:"institution,omitempty"`
}

type statusUpdateRequest struct {
	Status  domain.ApplicationStatus `json:"status"`
	ActorID string                   `json:"actor_id"`
	Notes   string                   `json:"notes,omitempty"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type stepCatalogEntry struct {
	Name          domain.StepName `json:"name"`
	Description   string          `json:"description"`
	RequestFields []string        `json:"request_fields"`
}

func NewHandler(cfg config.Config, store *storage.PostgresStore, blob uploadBlobStore, state *appstate.Manager, catalog *registry.Registry, temporalClient client.Client) *Handler {
	return &Handler{cfg: cfg, store: store, blob: blob, state: state, catalog: catalog, temporalClient: temporalClient}
}

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "first_name and last_name are required"})
		return
	}
	if req.NPINumber != "" && !domain.ValidNPI(req.NPINumber) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "npi_number failed checksum"})
		return
	}

	app, err := h.store.CreateApplication(ctx, domain.Application{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		NPINumber:     req.NPINumber,
		DEANumber:     req.DEANumber,
		LicenseNumber: req.LicenseNumber,
		LicenseState:  req.LicenseState,
		Specialty:     req.Specialty,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create application"})
		return
	}

	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	catalog := h.catalog.List()
	entries := make([]stepCatalogEntry, 0, len(catalog))
	for _, name := range domain.KnownStepNames {
		step := catalog[name]
		entries = append(entries, stepCatalogEntry{
			Name:          step.Name,
			Description:   step.Description,
			RequestFields: step.RequestFields,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": entries})
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if _, err := h.store.GetApplication(ctx, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("Application %d not found", applicationID)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch application"})
		return
	}

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file exceeds size limit"})
		return
	}
	if !isSupportedTextUpload(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "only plain text documents are supported"})
		return
	}

	objectKey, err := h.blob.PutSupportingDocument(ctx, applicationID, header.Filename, body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to upload file"})
		return
	}

	documentID := uuid.NewString()
	if err := h.store.SaveSupportingDocument(ctx, documentID, applicationID, header.Filename, objectKey, string(body)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to record upload"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id":    documentID,
		"application_id": applicationID,
		"object_key":     objectKey,
	})
}

// StartVerification launches the verification workflow for the
// application. The request may narrow the step list; an empty list runs
// the full catalog.
func (h *Handler) StartVerification(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req verifyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
	}

	for _, step := range req.Steps {
		if _, err := h.catalog.Resolve(step); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	}

	app, err := h.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("Application %d not found", applicationID)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch application"})
		return
	}

	actorID := req.ActorID
	if actorID == "" {
		actorID = "api"
	}

	input := appTemporal.WorkflowInput{
		ApplicationID: applicationID,
		ActorID:       actorID,
		Steps:         req.Steps,
		Request: domain.StepRequest{
			ApplicationID: applicationID,
			FirstName:     app.FirstName,
			LastName:      app.LastName,
			NPINumber:     app.NPINumber,
			DEANumber:     app.DEANumber,
			LicenseNumber: app.LicenseNumber,
			LicenseState:  app.LicenseState,
			Specialty:     app.Specialty,
			Institution:   req.Institution,
			HospitalName:  req.HospitalName,
		},
	}

	run, err := h.temporalClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        h.workflowID(applicationID),
		TaskQueue: h.cfg.TemporalTaskQueue,
	}, appTemporal.CredentialVerificationWorkflow, input)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to start workflow"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"application_id": applicationID,
		"workflow_id":    run.GetID(),
		"run_id":         run.GetRunID(),
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	app, err := h.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("Application %d not found", applicationID)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch status"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"application_id": app.ID, "status": app.Status})
}

// UpdateStatus drives a direct status transition outside the workflow.
// A partial commit reports the committed status so the caller knows the
// write landed even though the audit entry is missing.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	app, err := h.state.UpdateStatus(ctx, applicationID, req.Status, req.ActorID, req.Notes)
	if err != nil {
		var partial *faults.PartialCommitError
		switch {
		case errors.As(err, &partial):
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":     "status committed but audit append failed",
				"committed": true,
				"status":    partial.Status,
				"event_id":  partial.Event.EventID,
			})
		case faults.IsInvalidArgument(err):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		case faults.IsNotFound(err):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update status"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"application_id": app.ID, "status": app.Status})
}

func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results, err := h.store.ListStepResults(ctx, applicationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch results"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application_id": applicationID, "results": results})
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request, applicationID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	events, err := h.store.ListAuditEvents(ctx, applicationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch audit trail"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application_id": applicationID, "events": events})
}

func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request, applicationID int64) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	decision := domain.DecisionType(req.Decision)
	switch decision {
	case domain.DecisionApprove, domain.DecisionReject, domain.DecisionHold, domain.DecisionResume:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid decision"})
		return
	}

	signal := appTemporal.DecisionSignal{
		Decision: decision,
		Reviewer: req.Reviewer,
		Reason:   req.Reason,
	}
	if err := h.temporalClient.SignalWorkflow(r.Context(), h.workflowID(applicationID), "", appTemporal.DecisionSignalName, signal); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to signal workflow"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"application_id": applicationID, "status": "decision_signal_sent"})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) workflowID(applicationID int64) string {
	return fmt.Sprintf("%s-%d", h.cfg.WorkflowIDPrefix, applicationID)
}

func parseApplicationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid application id %q", raw)
	}
	return id, nil
}

// isSupportedTextUpload accepts non-empty valid UTF-8 documents and
// rejects known binary formats by header.
func isSupportedTextUpload(body []byte) bool {
	if len(strings.TrimSpace(string(body))) == 0 {
		return false
	}
	if !utf8.Valid(body) {
		return false
	}
	if len(body) >= 4 && string(body[:4]) == "%PDF" {
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

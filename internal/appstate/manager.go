// Package appstate enforces the application status workflow. Every
// status transition is persisted and paired with exactly one audit
// entry; the two are a single logical operation from the caller's view.
package appstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"credverify/internal/domain"
	"credverify/internal/faults"
)

// Source identifies this subsystem in audit entries.
const Source = "application_state_manager"

// Store is the narrow storage surface the manager needs: point lookup by
// id and a partial update of the status field. Implementations report a
// missing row as sql.ErrNoRows or a faults NotFound.
type Store interface {
	GetApplication(ctx context.Context, id int64) (domain.Application, error)
	UpdateApplicationStatus(ctx context.Context, id int64, status domain.ApplicationStatus) (domain.Application, error)
}

// AuditSink appends one immutable entry per state mutation. Append is
// the only operation; there is no update or delete path.
type AuditSink interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

type Manager struct {
	store Store
	audit AuditSink
	now   func() time.Time
}

func NewManager(store Store, audit AuditSink) *Manager {
	return &Manager{store: store, audit: audit, now: time.Now}
}

// UpdateStatus moves the application to newStatus and appends the paired
// audit entry. The existence check runs before any write. The status
// write is acknowledged before the audit append is issued; if the append
// then fails, the committed write is surfaced as a PartialCommitError
// rather than a clean failure so the caller can re-append.
//
// Concurrent updates for the same application are last-write-wins; the
// manager performs no locking or compare-and-swap. Callers needing
// per-application serialization must provide it themselves.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, newStatus domain.ApplicationStatus, actorID string, notes string) (domain.Application, error) {
	if !domain.ValidStatus(newStatus) {
		return domain.Application{}, faults.InvalidArgumentf("unknown application status %q", newStatus)
	}

	if _, err := m.store.GetApplication(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || faults.IsNotFound(err) {
			return domain.Application{}, faults.NotFoundf("Application %d not found", id)
		}
		return domain.Application{}, faults.External("storage", err)
	}

	updated, err := m.store.UpdateApplicationStatus(ctx, id, newStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || faults.IsNotFound(err) {
			return domain.Application{}, faults.NotFoundf("Application %d not found", id)
		}
		return domain.Application{}, faults.External("storage", err)
	}

	event := domain.AuditEvent{
		EventID:       uuid.NewString(),
		ApplicationID: id,
		ActorID:       actorID,
		Action:        fmt.Sprintf("application status changed to %s", newStatus),
		Source:        Source,
		Timestamp:     m.now().UTC(),
	}
	if notes != "" {
		event.Notes = &notes
	}

	if err := m.audit.Append(ctx, event); err != nil {
		return updated, &faults.PartialCommitError{Status: newStatus, Event: event, Err: err}
	}
	return updated, nil
}

// ReappendAudit retries the audit append after a partial commit. The
// event keeps its original id, so a sink that treats the id as the
// conflict key will not double-log.
func (m *Manager) ReappendAudit(ctx context.Context, event domain.AuditEvent) error {
	if err := m.audit.Append(ctx, event); err != nil {
		return faults.External("audit", err)
	}
	return nil
}

// SetDraft returns the application to draft.
func (m *Manager) SetDraft(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusDraft, actorID, notes)
}

// SetInProgress begins verification.
func (m *Manager) SetInProgress(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusInProgress, actorID, notes)
}

// SetReadyForReview marks all verification steps complete.
func (m *Manager) SetReadyForReview(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusReadyForReview, actorID, notes)
}

// Approve records an approval decision.
func (m *Manager) Approve(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusApproved, actorID, notes)
}

// Reject records a rejection decision.
func (m *Manager) Reject(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusRejected, actorID, notes)
}

// SetOnHold pauses the application from any state; resuming is a
// follow-up transition to the desired state.
func (m *Manager) SetOnHold(ctx context.Context, id int64, actorID string, notes string) (domain.Application, error) {
	return m.UpdateStatus(ctx, id, domain.StatusOnHold, actorID, notes)
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"credverify/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateApplication(ctx context.Context, app domain.Application) (domain.Application, error) {
	status := app.Status
	if status == "" {
		status = domain.StatusDraft
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO applications (first_name, last_name, npi_number, dea_number, license_number, license_state, specialty, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status
	`, app.FirstName, app.LastName, app.NPINumber, app.DEANumber, app.LicenseNumber, app.LicenseState, app.Specialty, status)
	if err := row.Scan(&app.ID, &app.Status); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

func (s *PostgresStore) GetApplication(ctx context.Context, id int64) (domain.Application, error) {
	var app domain.Application
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name,
		       COALESCE(npi_number, ''), COALESCE(dea_number, ''),
		       COALESCE(license_number, ''), COALESCE(license_state, ''),
		       COALESCE(specialty, ''), status
		FROM applications
		WHERE id = $1
	`, id)
	if err := row.Scan(
		&app.ID,
		&app.FirstName,
		&app.LastName,
		&app.NPINumber,
		&app.DEANumber,
		&app.LicenseNumber,
		&app.LicenseState,
		&app.Specialty,
		&app.Status,
	); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// UpdateApplicationStatus writes the new status in a single statement and
// returns the committed row. A missing application surfaces as
// sql.ErrNoRows. Racing updates are last-write-wins.
func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id int64, status domain.ApplicationStatus) (domain.Application, error) {
	var app domain.Application
	row := s.db.QueryRowContext(ctx, `
		UPDATE applications
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, first_name, last_name,
		          COALESCE(npi_number, ''), COALESCE(dea_number, ''),
		          COALESCE(license_number, ''), COALESCE(license_state, ''),
		          COALESCE(specialty, ''), status
	`, id, status)
	if err := row.Scan(
		&app.ID,
		&app.FirstName,
		&app.LastName,
		&app.NPINumber,
		&app.DEANumber,
		&app.LicenseNumber,
		&app.LicenseState,
		&app.Specialty,
		&app.Status,
	); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// Append writes one audit entry. The event id is the conflict key, so
// re-appending the same event after a partial commit does not
// double-log.
func (s *PostgresStore) Append(ctx context.Context, event domain.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, application_id, actor_id, action, notes, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.ApplicationID, event.ActorID, event.Action, event.Notes, event.Source, event.Timestamp)
	return err
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, applicationID int64) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, application_id, actor_id, action, notes, source, created_at
		FROM audit_log
		WHERE application_id = $1
		ORDER BY created_at ASC
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var event domain.AuditEvent
		var notes sql.NullString
		if err := rows.Scan(&event.EventID, &event.ApplicationID, &event.ActorID, &event.Action, &notes, &event.Source, &event.Timestamp); err != nil {
			return nil, err
		}
		if notes.Valid {
			event.Notes = &notes.String
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *PostgresStore) SaveStepResult(ctx context.Context, applicationID int64, result domain.StepResult) error {
	findings := result.Findings
	if len(findings) == 0 {
		findings = json.RawMessage("{}")
	}
	var usage []byte
	if result.Usage != nil {
		b, err := json.Marshal(result.Usage)
		if err != nil {
			return err
		}
		usage = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_results (application_id, step, success, found, findings, error_detail, usage)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb)
		ON CONFLICT (application_id, step) DO UPDATE SET
			success = EXCLUDED.success,
			found = EXCLUDED.found,
			findings = EXCLUDED.findings,
			error_detail = EXCLUDED.error_detail,
			usage = EXCLUDED.usage,
			updated_at = NOW()
	`, applicationID, result.Step, result.Success, result.Found, string(findings), result.Error, nullableJSON(usage))
	return err
}

func (s *PostgresStore) ListStepResults(ctx context.Context, applicationID int64) ([]domain.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, success, found, findings, error_detail, usage
		FROM step_results
		WHERE application_id = $1
		ORDER BY step ASC
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.StepResult, 0)
	for rows.Next() {
		var result domain.StepResult
		var findings []byte
		var errDetail sql.NullString
		var usage []byte
		if err := rows.Scan(&result.Step, &result.Success, &result.Found, &findings, &errDetail, &usage); err != nil {
			return nil, err
		}
		result.Findings = findings
		if errDetail.Valid {
			result.Error = &errDetail.String
		}
		if len(usage) > 0 {
			var u domain.LLMUsage
			if err := json.Unmarshal(usage, &u); err != nil {
				return nil, fmt.Errorf("decode usage for step %s: %w", result.Step, err)
			}
			result.Usage = &u
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PostgresStore) SaveSupportingDocument(ctx context.Context, documentID string, applicationID int64, filename, objectKey, rawText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supporting_documents (id, application_id, filename, object_key, raw_text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, documentID, applicationID, filename, objectKey, rawText)
	return err
}

// LatestDocumentText returns the text of the most recently uploaded
// supporting document for the application, or empty when none exists.
func (s *PostgresStore) LatestDocumentText(ctx context.Context, applicationID int64) (string, error) {
	var text string
	row := s.db.QueryRowContext(ctx, `
		SELECT raw_text
		FROM supporting_documents
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, applicationID)
	if err := row.Scan(&text); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return text, nil
}

func (s *PostgresStore) CountApplications(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return count, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

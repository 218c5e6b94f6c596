//go:build integration

package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"credverify/internal/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS applications (
	id BIGSERIAL PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	npi_number TEXT,
	dea_number TEXT,
	license_number TEXT,
	license_state TEXT,
	specialty TEXT,
	status TEXT NOT NULL DEFAULT 'draft',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_log (
	event_id UUID PRIMARY KEY,
	application_id BIGINT NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	notes TEXT,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS step_results (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL,
	step TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	found BOOLEAN NOT NULL,
	findings JSONB NOT NULL DEFAULT '{}',
	error_detail TEXT,
	usage JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (application_id, step)
);

CREATE TABLE IF NOT EXISTS supporting_documents (
	id UUID PRIMARY KEY,
	application_id BIGINT NOT NULL,
	filename TEXT NOT NULL,
	object_key TEXT NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func startStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		pgC, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("credverify_test"),
			postgres.WithUsername("testuser"),
			postgres.WithPassword("testpass"),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

		dsn, err = pgC.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := store.Ping(ctx); err == nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "postgres did not become ready")
		time.Sleep(500 * time.Millisecond)
	}

	_, err = store.db.ExecContext(ctx, schemaDDL)
	require.NoError(t, err)
	return store
}

func TestApplicationLifecycleRoundTrip(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	created, err := store.CreateApplication(ctx, domain.Application{
		FirstName: "Ana",
		LastName:  "Rivera",
		NPINumber: "1234567893",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, domain.StatusDraft, created.Status)

	fetched, err := store.GetApplication(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
	require.Equal(t, "1234567893", fetched.NPINumber)

	updated, err := store.UpdateApplicationStatus(ctx, created.ID, domain.StatusInProgress)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, updated.Status)

	_, err = store.GetApplication(ctx, created.ID+100000)
	require.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = store.UpdateApplicationStatus(ctx, created.ID+100000, domain.StatusApproved)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestAuditAppendIsIdempotentPerEventID(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, domain.Application{FirstName: "Ana", LastName: "Rivera"})
	require.NoError(t, err)

	event := domain.AuditEvent{
		EventID:       uuid.NewString(),
		ApplicationID: app.ID,
		ActorID:       "actor-1",
		Action:        "application status changed to in_progress",
		Source:        "application_state_manager",
		Timestamp:     time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, event))
	require.NoError(t, store.Append(ctx, event))

	events, err := store.ListAuditEvents(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, event.EventID, events[0].EventID)
}

func TestStepResultUpsert(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, domain.Application{FirstName: "Ana", LastName: "Rivera"})
	require.NoError(t, err)

	result := domain.StepResult{
		Step:     domain.StepStateLicense,
		Success:  true,
		Found:    true,
		Findings: []byte(`{"found":true,"record":{"status":"active"}}`),
	}
	require.NoError(t, store.SaveStepResult(ctx, app.ID, result))

	// Re-running the step replaces the stored result.
	result.Found = false
	result.Findings = []byte(`{"found":false,"detail":"license lapsed"}`)
	require.NoError(t, store.SaveStepResult(ctx, app.ID, result))

	results, err := store.ListStepResults(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].Found)
}

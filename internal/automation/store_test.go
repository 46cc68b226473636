package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-engine/internal/domain"
)

var workflowCols = []string{"id", "organization_id", "name", "description", "trigger_type", "trigger_data",
	"actions", "is_active", "executions", "last_run_at", "created_at", "updated_at"}

func TestStore_ListActiveByTrigger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastRun := created.Add(time.Hour)
	mock.ExpectQuery(`SELECT .+ FROM workflows WHERE trigger_type = \$1 AND is_active = TRUE AND organization_id = \$2 ORDER BY created_at`).
		WithArgs("LEAD_CREATED", "org-1").
		WillReturnRows(sqlmock.NewRows(workflowCols).
			AddRow("wf-1", "org-1", "Welcome", "", "LEAD_CREATED", []byte(`{"conditions":[]}`),
				[]byte(`[{"type":"SEND_EMAIL"}]`), true, 3, lastRun, created, created).
			AddRow("wf-2", "org-1", "Notify", "desc", "LEAD_CREATED", nil,
				[]byte(`[]`), true, 0, nil, created, created))

	wfs, err := NewStore(db).ListActiveByTrigger(context.Background(), "org-1", domain.TriggerLeadCreated)
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, domain.TriggerLeadCreated, wfs[0].TriggerType)
	assert.JSONEq(t, `{"conditions":[]}`, string(wfs[0].TriggerData))
	assert.JSONEq(t, `[{"type":"SEND_EMAIL"}]`, string(wfs[0].Actions))
	require.NotNil(t, wfs[0].LastRunAt)
	assert.Nil(t, wfs[1].TriggerData)
	assert.Nil(t, wfs[1].LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListActiveByTrigger_MalformedActionsDoNotHideOthers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM workflows WHERE trigger_type = \$1 AND is_active = TRUE ORDER BY created_at`).
		WithArgs("LEAD_CREATED").
		WillReturnRows(sqlmock.NewRows(workflowCols).
			AddRow("wf-bad", "org-1", "Broken", "", "LEAD_CREATED", nil,
				[]byte(`{not json`), true, 0, nil, created, created).
			AddRow("wf-good", "org-1", "Healthy", "", "LEAD_CREATED", nil,
				[]byte(`[]`), true, 0, nil, created, created))

	wfs, err := NewStore(db).ListActiveByTrigger(context.Background(), "", domain.TriggerLeadCreated)
	require.NoError(t, err)
	require.Len(t, wfs, 2)
	assert.Equal(t, "wf-bad", wfs[0].ID)
	assert.Nil(t, wfs[0].Actions)
	assert.Equal(t, "wf-good", wfs[1].ID)
	assert.JSONEq(t, `[]`, string(wfs[1].Actions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectTriggers_MalformedActionsStillQueueHealthyWorkflow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM workflows WHERE trigger_type = \$1 AND is_active = TRUE ORDER BY created_at`).
		WithArgs("LEAD_CREATED").
		WillReturnRows(sqlmock.NewRows(workflowCols).
			AddRow("wf-bad", "org-1", "Broken", "", "LEAD_CREATED", nil,
				[]byte(`{not json`), true, 0, nil, created, created).
			AddRow("wf-good", "org-1", "Healthy", "", "LEAD_CREATED", nil,
				[]byte(`[]`), true, 0, nil, created, created))
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO workflow_executions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE workflows`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	d := NewDetector(NewStore(db), WithConcurrency(1))
	matched, err := d.DetectTriggers(context.Background(), domain.TriggerEvent{Type: domain.TriggerLeadCreated})
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "wf-good", matched[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListActiveByTrigger_AllOrganizations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM workflows WHERE trigger_type = \$1 AND is_active = TRUE ORDER BY created_at`).
		WithArgs("TAG_ADDED").
		WillReturnRows(sqlmock.NewRows(workflowCols))

	wfs, err := NewStore(db).ListActiveByTrigger(context.Background(), "", domain.TriggerTagAdded)
	require.NoError(t, err)
	assert.Empty(t, wfs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueueExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 7, 4, 9, 30, 0, 0, time.UTC)
	lead := "lead-1"
	exec := &domain.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		LeadID:     &lead,
		Status:     domain.ExecutionPending,
		Metadata:   domain.ExecutionMetadata{EventData: map[string]any{"k": "v"}, QueuedAt: "2026-07-04T09:30:00.000Z"},
		StartedAt:  started,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO workflow_executions`).
		WithArgs("exec-1", "wf-1", "lead-1", "PENDING", sqlmock.AnyArg(), started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE workflows SET executions = executions \+ 1, last_run_at = \$2`).
		WithArgs("wf-1", started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewStore(db).QueueExecution(context.Background(), exec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueueExecution_RollsBackOnCounterFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO workflow_executions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE workflows`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err = NewStore(db).QueueExecution(context.Background(), &domain.WorkflowExecution{
		ID: "e", WorkflowID: "w", Status: domain.ExecutionPending,
	})
	assert.ErrorContains(t, err, "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

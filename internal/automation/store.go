package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/logger"
)

// Store reads workflows and writes executions in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a workflow store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const workflowColumns = `id, organization_id, name, COALESCE(description,''), trigger_type, trigger_data,
	actions, is_active, executions, last_run_at, created_at, updated_at`

// ListActiveByTrigger implements WorkflowStore.
func (s *Store) ListActiveByTrigger(ctx context.Context, orgID string, trigger domain.TriggerType) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE trigger_type = $1 AND is_active = TRUE`
	args := []any{string(trigger)}
	if orgID != "" {
		query += ` AND organization_id = $2`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Workflow
	for rows.Next() {
		var (
			wf          domain.Workflow
			trigger     string
			triggerData []byte
			actions     []byte
			lastRun     sql.NullTime
		)
		if err := rows.Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &wf.Description, &trigger, &triggerData,
			&actions, &wf.IsActive, &wf.Executions, &lastRun, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		wf.TriggerType = domain.TriggerType(trigger)
		if len(triggerData) > 0 {
			wf.TriggerData = json.RawMessage(triggerData)
		}
		if len(actions) > 0 {
			if json.Valid(actions) {
				wf.Actions = json.RawMessage(actions)
			} else {
				logger.Warn("workflow has malformed actions", "component", "automation", "workflow_id", wf.ID)
			}
		}
		if lastRun.Valid {
			t := lastRun.Time
			wf.LastRunAt = &t
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// QueueExecution implements WorkflowStore. The insert and the counter bump
// share a transaction.
func (s *Store) QueueExecution(ctx context.Context, exec *domain.WorkflowExecution) error {
	meta, err := json.Marshal(exec.Metadata)
	if err != nil {
		return fmt.Errorf("encode execution metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, lead_id, status, metadata, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		exec.ID, exec.WorkflowID, exec.LeadID, string(exec.Status), meta, exec.StartedAt); err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workflows SET executions = executions + 1, last_run_at = $2, updated_at = NOW() WHERE id = $1`,
		exec.WorkflowID, exec.StartedAt); err != nil {
		return fmt.Errorf("bump workflow counters: %w", err)
	}
	return tx.Commit()
}

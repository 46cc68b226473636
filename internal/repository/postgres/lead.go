package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/segmentation"
	"github.com/ignite/crm-engine/internal/service/scoring"
)

// LeadRepo implements scoring.LeadStore and segmentation.LeadQuerier
// against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

var (
	_ scoring.LeadStore        = (*LeadRepo)(nil)
	_ segmentation.LeadQuerier = (*LeadRepo)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLead reads the segmentation.LeadColumns projection.
func scanLead(row rowScanner) (*domain.Lead, error) {
	l := &domain.Lead{}
	var (
		status   string
		value    sql.NullFloat64
		assigned sql.NullString
		tags     pq.StringArray
		custom   []byte
	)
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.FirstName, &l.LastName, &l.Email,
		&l.Phone, &l.Company, &l.Source, &status, &l.Score,
		&value, &assigned, &l.EmailOptIn, &tags, &custom, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = domain.LeadStatus(status)
	if value.Valid {
		v := value.Float64
		l.Value = &v
	}
	if assigned.Valid {
		a := assigned.String
		l.AssignedToID = &a
	}
	l.Tags = []string(tags)
	if l.Tags == nil {
		l.Tags = []string{}
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &l.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields for lead %s: %w", l.ID, err)
		}
	}
	return l, nil
}

func (r *LeadRepo) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+segmentation.LeadColumns+` FROM leads l WHERE l.id = $1`, leadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scoring.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ActivitySince merges the three timelines that carry scoring signal. A
// message counts as clicked when its metadata flags clicked or linkClicked.
func (r *LeadRepo) ActivitySince(ctx context.Context, leadID string, since time.Time) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, 'message', '', read_at IS NOT NULL, replied_at IS NOT NULL,
		       COALESCE(metadata->>'clicked' IN ('true','1') OR metadata->>'linkClicked' IN ('true','1'), FALSE),
		       created_at
		FROM messages
		WHERE lead_id = $1 AND created_at >= $2
		UNION ALL
		SELECT id, 'activity', type, FALSE, FALSE, FALSE, created_at
		FROM activities
		WHERE lead_id = $1 AND created_at >= $2
		UNION ALL
		SELECT id, 'appointment', status, FALSE, FALSE, FALSE, created_at
		FROM appointments
		WHERE lead_id = $1 AND created_at >= $2
		ORDER BY 7
	`, leadID, since)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a := domain.Activity{LeadID: leadID}
		var source string
		if err := rows.Scan(&a.ID, &source, &a.Kind, &a.Read, &a.Replied, &a.Clicked, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Source = domain.ActivitySource(source)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *LeadRepo) UpdateScore(ctx context.Context, leadID string, score int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET score = $2, updated_at = NOW() WHERE id = $1`, leadID, score)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return scoring.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) LeadIDsAssignedTo(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM leads WHERE assigned_to_id = $1 ORDER BY id`, userID)
}

func (r *LeadRepo) LeadIDsExcludingAssignees(ctx context.Context, userIDs []string) ([]string, error) {
	return r.ids(ctx, `
		SELECT id FROM leads
		WHERE assigned_to_id IS NULL OR NOT (assigned_to_id = ANY($1))
		ORDER BY id
	`, pq.Array(userIDs))
}

func (r *LeadRepo) ids(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *LeadRepo) LeadsByScoreRange(ctx context.Context, orgID string, lo, hi int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+segmentation.LeadColumns+`
		FROM leads l
		WHERE l.organization_id = $1 AND l.score BETWEEN $2 AND $3
		ORDER BY l.score DESC, l.created_at DESC
	`, orgID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("leads by score: %w", err)
	}
	return collectLeads(rows)
}

// CountLeads counts the leads matching a segment filter.
func (r *LeadRepo) CountLeads(ctx context.Context, f segmentation.Filter) (int, error) {
	q, args := segmentation.NewQueryBuilder().BuildCount(f)
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// FindLeads returns one page of leads matching a segment filter.
func (r *LeadRepo) FindLeads(ctx context.Context, f segmentation.Filter, limit, offset int) ([]domain.Lead, error) {
	q, args := segmentation.NewQueryBuilder().BuildSelect(f, limit, offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find leads: %w", err)
	}
	return collectLeads(rows)
}

func collectLeads(rows *sql.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

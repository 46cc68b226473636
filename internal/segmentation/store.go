package segmentation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/crm-engine/internal/domain"
)

// Store provides database operations for segments.
type Store struct {
	db *sql.DB
}

// NewStore creates a new segment store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const segmentColumns = `id, organization_id, name, COALESCE(description,''), rules, match_type,
	COALESCE(color,''), member_count, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSegment(row scanner) (*domain.Segment, error) {
	seg := &domain.Segment{}
	var rulesJSON []byte
	var match string
	err := row.Scan(&seg.ID, &seg.OrganizationID, &seg.Name, &seg.Description, &rulesJSON,
		&match, &seg.Color, &seg.MemberCount, &seg.IsActive, &seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	seg.MatchType = domain.MatchMode(match)
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &seg.Rules); err != nil {
			return nil, fmt.Errorf("decode rules for segment %s: %w", seg.ID, err)
		}
	}
	return seg, nil
}

func encodeRules(rs []domain.Rule) ([]byte, error) {
	if rs == nil {
		rs = []domain.Rule{}
	}
	return json.Marshal(rs)
}

// CreateSegment inserts seg. ID and timestamps must already be set.
func (s *Store) CreateSegment(ctx context.Context, seg *domain.Segment) error {
	rulesJSON, err := encodeRules(seg.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	query := `
		INSERT INTO segments (
			id, organization_id, name, description, rules, match_type, color,
			member_count, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		seg.ID, seg.OrganizationID, seg.Name, seg.Description, rulesJSON, string(seg.MatchType),
		seg.Color, seg.MemberCount, seg.IsActive, seg.CreatedAt, seg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// GetSegment retrieves a segment by ID within an organization.
func (s *Store) GetSegment(ctx context.Context, orgID, segmentID string) (*domain.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1 AND organization_id = $2`

	seg, err := scanSegment(s.db.QueryRowContext(ctx, query, segmentID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// ListSegments lists an organization's segments, newest first. With
// activeOnly set, inactive segments are skipped.
func (s *Store) ListSegments(ctx context.Context, orgID string, activeOnly bool) ([]domain.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE organization_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, *seg)
	}
	return segments, rows.Err()
}

// UpdateSegment writes every mutable column of seg.
func (s *Store) UpdateSegment(ctx context.Context, seg *domain.Segment) error {
	rulesJSON, err := encodeRules(seg.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}

	query := `
		UPDATE segments
		SET name = $3, description = $4, rules = $5, match_type = $6, color = $7,
			member_count = $8, is_active = $9, updated_at = $10
		WHERE id = $1 AND organization_id = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		seg.ID, seg.OrganizationID, seg.Name, seg.Description, rulesJSON, string(seg.MatchType),
		seg.Color, seg.MemberCount, seg.IsActive, seg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	return requireRow(res)
}

// UpdateMemberCount stores a refreshed member count.
func (s *Store) UpdateMemberCount(ctx context.Context, segmentID string, count int) error {
	query := `UPDATE segments SET member_count = $2, updated_at = NOW() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, segmentID, count)
	if err != nil {
		return fmt.Errorf("update member count: %w", err)
	}
	return requireRow(res)
}

// DeleteSegment removes a segment.
func (s *Store) DeleteSegment(ctx context.Context, orgID, segmentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM segments WHERE id = $1 AND organization_id = $2`, segmentID, orgID)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

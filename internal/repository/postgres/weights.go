package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/service/scoring"
)

// WeightRepo implements scoring.WeightStore against PostgreSQL.
type WeightRepo struct{ db *sql.DB }

// NewWeightRepo creates a Postgres-backed weight repository.
func NewWeightRepo(db *sql.DB) *WeightRepo { return &WeightRepo{db: db} }

var _ scoring.WeightStore = (*WeightRepo)(nil)

func (r *WeightRepo) GetScoringConfig(ctx context.Context, orgID string) (*domain.ScoringConfig, error) {
	cfg := &domain.ScoringConfig{}
	w := &cfg.Weights
	var updatedBy sql.NullString
	var updatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email_open_weight, email_click_weight, email_reply_weight,
		       form_submission_weight, property_inquiry_weight, scheduled_appt_weight,
		       completed_appt_weight, email_opt_out_penalty, recency_bonus_max,
		       frequency_bonus_max, updated_by_id, updated_at
		FROM scoring_configs
		WHERE organization_id = $1
	`, orgID).Scan(
		&cfg.ID, &cfg.OrganizationID, &w.EmailOpen, &w.EmailClick, &w.EmailReply,
		&w.FormSubmission, &w.PropertyInquiry, &w.ScheduledAppointment,
		&w.CompletedAppointment, &w.OptOutPenalty, &w.RecencyMax,
		&w.FrequencyMax, &updatedBy, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scoring.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring config: %w", err)
	}
	if updatedBy.Valid {
		cfg.UpdatedByID = &updatedBy.String
	}
	if updatedAt.Valid {
		cfg.UpdatedAt = &updatedAt.Time
	}
	return cfg, nil
}

func (r *WeightRepo) UpsertScoringConfig(ctx context.Context, cfg *domain.ScoringConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	w := cfg.Weights
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scoring_configs
			(id, organization_id, email_open_weight, email_click_weight, email_reply_weight,
			 form_submission_weight, property_inquiry_weight, scheduled_appt_weight,
			 completed_appt_weight, email_opt_out_penalty, recency_bonus_max,
			 frequency_bonus_max, updated_by_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, NOW()))
		ON CONFLICT (organization_id) DO UPDATE SET
			email_open_weight       = EXCLUDED.email_open_weight,
			email_click_weight      = EXCLUDED.email_click_weight,
			email_reply_weight      = EXCLUDED.email_reply_weight,
			form_submission_weight  = EXCLUDED.form_submission_weight,
			property_inquiry_weight = EXCLUDED.property_inquiry_weight,
			scheduled_appt_weight   = EXCLUDED.scheduled_appt_weight,
			completed_appt_weight   = EXCLUDED.completed_appt_weight,
			email_opt_out_penalty   = EXCLUDED.email_opt_out_penalty,
			recency_bonus_max       = EXCLUDED.recency_bonus_max,
			frequency_bonus_max     = EXCLUDED.frequency_bonus_max,
			updated_by_id           = EXCLUDED.updated_by_id,
			updated_at              = EXCLUDED.updated_at
	`, cfg.ID, cfg.OrganizationID, w.EmailOpen, w.EmailClick, w.EmailReply,
		w.FormSubmission, w.PropertyInquiry, w.ScheduledAppointment,
		w.CompletedAppointment, w.OptOutPenalty, w.RecencyMax,
		w.FrequencyMax, cfg.UpdatedByID, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert scoring config: %w", err)
	}
	return nil
}

func (r *WeightRepo) DeleteScoringConfig(ctx context.Context, orgID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scoring_configs WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("delete scoring config: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return scoring.ErrNotFound
	}
	return nil
}

func (r *WeightRepo) GetUserProfile(ctx context.Context, userID string) (*domain.UserWeightProfile, error) {
	p := &domain.UserWeightProfile{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, activity_weight, recency_weight
		FROM user_weight_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.ActivityWeight, &p.RecencyWeight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scoring.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return p, nil
}

func (r *WeightRepo) ListUserProfiles(ctx context.Context) ([]domain.UserWeightProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, activity_weight, recency_weight
		FROM user_weight_profiles
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list user profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.UserWeightProfile
	for rows.Next() {
		var p domain.UserWeightProfile
		if err := rows.Scan(&p.UserID, &p.ActivityWeight, &p.RecencyWeight); err != nil {
			return nil, fmt.Errorf("scan user profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveUserProfile creates or replaces a user's weight profile.
func (r *WeightRepo) SaveUserProfile(ctx context.Context, p domain.UserWeightProfile) error {
	if !p.Valid() {
		return fmt.Errorf("%w: weights must be in (0,1]", scoring.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_weight_profiles (user_id, activity_weight, recency_weight, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			activity_weight = EXCLUDED.activity_weight,
			recency_weight  = EXCLUDED.recency_weight,
			updated_at      = NOW()
	`, p.UserID, p.ActivityWeight, p.RecencyWeight)
	if err != nil {
		return fmt.Errorf("save user profile: %w", err)
	}
	return nil
}

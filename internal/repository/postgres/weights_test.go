package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/service/scoring"
)

func newWeightRepo(t *testing.T) (*WeightRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWeightRepo(db), mock
}

var configCols = []string{"id", "organization_id", "email_open_weight", "email_click_weight",
	"email_reply_weight", "form_submission_weight", "property_inquiry_weight", "scheduled_appt_weight",
	"completed_appt_weight", "email_opt_out_penalty", "recency_bonus_max", "frequency_bonus_max",
	"updated_by_id", "updated_at"}

func TestWeightRepo_GetScoringConfig(t *testing.T) {
	repo, mock := newWeightRepo(t)
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM scoring_configs WHERE organization_id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(configCols).
			AddRow("cfg-1", "org-1", 6.0, 12.0, 15.0, 20.0, 25.0, 30.0, 40.0, -40.0, 10.0, 5.0, "user-1", at))

	cfg, err := repo.GetScoringConfig(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, cfg.Weights.EmailOpen)
	assert.Equal(t, -40.0, cfg.Weights.OptOutPenalty)
	assert.Equal(t, 5.0, cfg.Weights.FrequencyMax)
	require.NotNil(t, cfg.UpdatedByID)
	assert.Equal(t, "user-1", *cfg.UpdatedByID)
	require.NotNil(t, cfg.UpdatedAt)
	assert.False(t, cfg.IsDefault)
}

func TestWeightRepo_GetScoringConfig_NotFound(t *testing.T) {
	repo, mock := newWeightRepo(t)
	mock.ExpectQuery(`FROM scoring_configs`).WillReturnRows(sqlmock.NewRows(configCols))

	_, err := repo.GetScoringConfig(context.Background(), "org-1")
	assert.ErrorIs(t, err, scoring.ErrNotFound)
}

func TestWeightRepo_UpsertScoringConfig(t *testing.T) {
	repo, mock := newWeightRepo(t)
	by := "user-2"

	mock.ExpectExec(`INSERT INTO scoring_configs .+ ON CONFLICT \(organization_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "org-1", 5.0, 10.0, 15.0, 20.0, 25.0, 30.0, 40.0, -50.0, 20.0, 15.0,
			by, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &domain.ScoringConfig{
		OrganizationID: "org-1",
		UpdatedByID:    &by,
		Weights: domain.ScoringWeights{EmailOpen: 5, EmailClick: 10, EmailReply: 15, FormSubmission: 20,
			PropertyInquiry: 25, ScheduledAppointment: 30, CompletedAppointment: 40, OptOutPenalty: -50,
			RecencyMax: 20, FrequencyMax: 15},
	}
	require.NoError(t, repo.UpsertScoringConfig(context.Background(), cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeightRepo_DeleteScoringConfig(t *testing.T) {
	repo, mock := newWeightRepo(t)

	mock.ExpectExec(`DELETE FROM scoring_configs`).WithArgs("org-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM scoring_configs`).WithArgs("org-1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteScoringConfig(context.Background(), "org-1"))
	assert.ErrorIs(t, repo.DeleteScoringConfig(context.Background(), "org-1"), scoring.ErrNotFound)
}

func TestWeightRepo_UserProfiles(t *testing.T) {
	repo, mock := newWeightRepo(t)
	cols := []string{"user_id", "activity_weight", "recency_weight"}

	mock.ExpectQuery(`FROM user_weight_profiles WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("user-1", 0.6, 0.4))
	mock.ExpectQuery(`FROM user_weight_profiles WHERE user_id = \$1`).
		WithArgs("user-9").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`FROM user_weight_profiles ORDER BY user_id`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("user-1", 0.6, 0.4).AddRow("user-2", 0.3, 0.2))

	p, err := repo.GetUserProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, p.ActivityWeight)

	_, err = repo.GetUserProfile(context.Background(), "user-9")
	assert.ErrorIs(t, err, scoring.ErrNotFound)

	all, err := repo.ListUserProfiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeightRepo_SaveUserProfile(t *testing.T) {
	repo, mock := newWeightRepo(t)

	mock.ExpectExec(`INSERT INTO user_weight_profiles .+ ON CONFLICT \(user_id\)`).
		WithArgs("user-1", 0.5, 0.25).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveUserProfile(context.Background(),
		domain.UserWeightProfile{UserID: "user-1", ActivityWeight: 0.5, RecencyWeight: 0.25}))

	err := repo.SaveUserProfile(context.Background(),
		domain.UserWeightProfile{UserID: "user-1", ActivityWeight: 1.5, RecencyWeight: 0.25})
	assert.ErrorIs(t, err, scoring.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

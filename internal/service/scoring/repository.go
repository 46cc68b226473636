package scoring

import (
	"context"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
)

// LeadStore is the lead side of scoring: reads a lead with its windowed
// activity and writes the score back.
type LeadStore interface {
	// GetLead returns ErrNotFound when the lead does not exist.
	GetLead(ctx context.Context, leadID string) (*domain.Lead, error)

	// ActivitySince returns the lead's messages, activities and appointments
	// that occurred at or after since.
	ActivitySince(ctx context.Context, leadID string, since time.Time) ([]domain.Activity, error)

	// UpdateScore writes the score. Returns ErrNotFound if the lead is gone.
	UpdateScore(ctx context.Context, leadID string, score int) error

	// LeadIDsAssignedTo lists the leads owned by a user.
	LeadIDsAssignedTo(ctx context.Context, userID string) ([]string, error)

	// LeadIDsExcludingAssignees lists every lead not owned by one of userIDs,
	// unassigned leads included.
	LeadIDsExcludingAssignees(ctx context.Context, userIDs []string) ([]string, error)

	// LeadsByScoreRange lists an organization's leads with lo <= score <= hi,
	// highest score first.
	LeadsByScoreRange(ctx context.Context, orgID string, lo, hi int) ([]domain.Lead, error)
}

// WeightStore holds organization overrides and per-user weight profiles.
type WeightStore interface {
	// GetScoringConfig returns ErrNotFound when the org has no override.
	GetScoringConfig(ctx context.Context, orgID string) (*domain.ScoringConfig, error)
	UpsertScoringConfig(ctx context.Context, cfg *domain.ScoringConfig) error
	DeleteScoringConfig(ctx context.Context, orgID string) error

	// GetUserProfile returns ErrNotFound when the user has no profile.
	GetUserProfile(ctx context.Context, userID string) (*domain.UserWeightProfile, error)
	ListUserProfiles(ctx context.Context) ([]domain.UserWeightProfile, error)
}

package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/batch"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/pkg/metrics"
	engine "github.com/ignite/crm-engine/internal/scoring"
)

// updateAllLockKey guards UpdateAllLeadScores across processes.
const updateAllLockKey = "lead-scoring:update-all"

// Service implements lead scoring. It is safe for concurrent use.
type Service struct {
	leads   LeadStore
	weights WeightStore

	locker     distlock.Locker
	metrics    *metrics.Manager
	batch      batch.Options
	windowDays int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker guards UpdateAllLeadScores with a distributed lock.
func WithLocker(l distlock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithMetrics records scoring outcomes.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBatch sets chunk size and per-chunk concurrency for bulk runs.
func WithBatch(opts batch.Options) Option {
	return func(s *Service) { s.batch = opts }
}

// WithWindowDays overrides the trailing activity window.
func WithWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a scoring service over the given stores.
func NewService(leads LeadStore, weights WeightStore, opts ...Option) *Service {
	s := &Service{
		leads:      leads,
		weights:    weights,
		windowDays: engine.WindowDays,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetScoreCategory bands a score into HOT, WARM, COOL or COLD.
func (s *Service) GetScoreCategory(score int) domain.ScoreCategory {
	return engine.Category(score)
}

// UpdateLeadScore computes and persists one lead's score. When userID is
// non-empty and that user has a valid weight profile, the profile scales
// the weights.
func (s *Service) UpdateLeadScore(ctx context.Context, leadID, userID string) (int, error) {
	profile, err := s.userProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	score, err := s.scoreLead(ctx, leadID, profile)
	if err != nil {
		s.metrics.LeadScoreFailed()
		return 0, err
	}
	return score, nil
}

// UpdateMultipleLeadScores rescores leadIDs with the same optional user
// profile. Per-lead failures are logged and counted.
func (s *Service) UpdateMultipleLeadScores(ctx context.Context, leadIDs []string, userID string) (domain.BatchResult, error) {
	profile, err := s.userProfile(ctx, userID)
	if err != nil {
		return domain.BatchResult{}, err
	}
	return s.scoreMany(ctx, leadIDs, profile), nil
}

// UpdateAllLeadScores rescores every lead: first the leads owned by users
// with a weight profile (scored with that profile), then all remaining
// leads with organization or default weights. Returns ErrBatchInProgress
// when another run holds the lock.
func (s *Service) UpdateAllLeadScores(ctx context.Context) (domain.BatchResult, error) {
	var total domain.BatchResult
	err := distlock.Run(ctx, s.locker, updateAllLockKey, func(ctx context.Context) error {
		profiles, err := s.weights.ListUserProfiles(ctx)
		if err != nil {
			return fmt.Errorf("list weight profiles: %w", err)
		}

		owners := make([]string, 0, len(profiles))
		for i := range profiles {
			p := profiles[i]
			owners = append(owners, p.UserID)
			if !p.Valid() {
				logger.Warn("ignoring invalid weight profile", "component", "scoring",
					"user_id", p.UserID, "activity_weight", p.ActivityWeight, "recency_weight", p.RecencyWeight)
			}

			ids, err := s.leads.LeadIDsAssignedTo(ctx, p.UserID)
			if err != nil {
				logger.Error("list leads for user", "component", "scoring", "user_id", p.UserID, "error", err)
				total.Errors++
				continue
			}
			res := s.scoreMany(ctx, ids, &p)
			total.Updated += res.Updated
			total.Errors += res.Errors
		}

		rest, err := s.leads.LeadIDsExcludingAssignees(ctx, owners)
		if err != nil {
			return fmt.Errorf("list remaining leads: %w", err)
		}
		res := s.scoreMany(ctx, rest, nil)
		total.Updated += res.Updated
		total.Errors += res.Errors
		return nil
	})
	if errors.Is(err, distlock.ErrHeld) {
		return total, ErrBatchInProgress
	}
	if err != nil {
		return total, err
	}

	logger.Info("lead scoring run complete", "component", "scoring",
		"updated", total.Updated, "errors", total.Errors)
	return total, nil
}

// GetLeadsByScoreCategory lists an organization's leads whose score falls
// inside category, highest first.
func (s *Service) GetLeadsByScoreCategory(ctx context.Context, orgID string, category domain.ScoreCategory) ([]domain.Lead, error) {
	lo, hi, ok := category.Bounds()
	if !ok {
		return nil, fmt.Errorf("score category %q: %w", category, ErrInvalidInput)
	}
	return s.leads.LeadsByScoreRange(ctx, orgID, lo, hi)
}

func (s *Service) scoreMany(ctx context.Context, leadIDs []string, profile *domain.UserWeightProfile) domain.BatchResult {
	errs := batch.Each(ctx, leadIDs, s.batch, func(ctx context.Context, leadID string) error {
		_, err := s.scoreLead(ctx, leadID, profile)
		if err != nil {
			s.metrics.LeadScoreFailed()
			logger.Error("lead score update failed", "component", "scoring", "lead_id", leadID, "error", err)
		}
		return err
	})
	updated, failed := batch.Count(errs)
	return domain.BatchResult{Updated: updated, Errors: failed}
}

func (s *Service) scoreLead(ctx context.Context, leadID string, profile *domain.UserWeightProfile) (int, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("lead %s: %w", leadID, err)
	}

	org, err := s.orgWeights(ctx, lead.OrganizationID)
	if err != nil {
		return 0, err
	}
	weights := engine.ResolveWeights(profile, org)

	now := s.now()
	since := now.AddDate(0, 0, -s.windowDays)
	acts, err := s.leads.ActivitySince(ctx, leadID, since)
	if err != nil {
		return 0, fmt.Errorf("activity for lead %s: %w", leadID, err)
	}

	facts := engine.AggregateActivity(acts, !lead.EmailOptIn, now)
	score := engine.ComputeScore(facts, weights)
	if err := s.leads.UpdateScore(ctx, leadID, score); err != nil {
		return 0, fmt.Errorf("write score for lead %s: %w", leadID, err)
	}

	s.metrics.LeadScored(score)
	logger.Debug("lead scored", "component", "scoring", "lead_id", leadID,
		"score", score, "category", string(engine.Category(score)))
	return score, nil
}

func (s *Service) orgWeights(ctx context.Context, orgID string) (*domain.ScoringWeights, error) {
	cfg, err := s.weights.GetScoringConfig(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scoring config for org %s: %w", orgID, err)
	}
	return &cfg.Weights, nil
}

func (s *Service) userProfile(ctx context.Context, userID string) (*domain.UserWeightProfile, error) {
	if userID == "" {
		return nil, nil
	}
	p, err := s.weights.GetUserProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("weight profile for user %s: %w", userID, err)
	}
	if !p.Valid() {
		logger.Warn("ignoring invalid weight profile", "component", "scoring",
			"user_id", userID, "activity_weight", p.ActivityWeight, "recency_weight", p.RecencyWeight)
		return nil, nil
	}
	return p, nil
}

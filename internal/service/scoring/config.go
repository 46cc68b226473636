package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/crm-engine/internal/domain"
	engine "github.com/ignite/crm-engine/internal/scoring"
)

// WeightsInput is a partial weight set. Nil fields take the default.
type WeightsInput struct {
	EmailOpen            *float64 `json:"emailOpenWeight"`
	EmailClick           *float64 `json:"emailClickWeight"`
	EmailReply           *float64 `json:"emailReplyWeight"`
	FormSubmission       *float64 `json:"formSubmissionWeight"`
	PropertyInquiry      *float64 `json:"propertyInquiryWeight"`
	ScheduledAppointment *float64 `json:"scheduledApptWeight"`
	CompletedAppointment *float64 `json:"completedApptWeight"`
	OptOutPenalty        *float64 `json:"emailOptOutPenalty"`
	RecencyMax           *float64 `json:"recencyBonusMax"`
	FrequencyMax         *float64 `json:"frequencyBonusMax"`
}

func (in WeightsInput) apply() (domain.ScoringWeights, error) {
	w := engine.DefaultWeights()
	positive := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"emailOpenWeight", in.EmailOpen, &w.EmailOpen},
		{"emailClickWeight", in.EmailClick, &w.EmailClick},
		{"emailReplyWeight", in.EmailReply, &w.EmailReply},
		{"formSubmissionWeight", in.FormSubmission, &w.FormSubmission},
		{"propertyInquiryWeight", in.PropertyInquiry, &w.PropertyInquiry},
		{"scheduledApptWeight", in.ScheduledAppointment, &w.ScheduledAppointment},
		{"completedApptWeight", in.CompletedAppointment, &w.CompletedAppointment},
		{"recencyBonusMax", in.RecencyMax, &w.RecencyMax},
		{"frequencyBonusMax", in.FrequencyMax, &w.FrequencyMax},
	}
	for _, f := range positive {
		if f.src == nil {
			continue
		}
		if *f.src < 0 || *f.src > 100 {
			return w, fmt.Errorf("%s must be between 0 and 100: %w", f.name, ErrInvalidInput)
		}
		*f.dst = *f.src
	}
	if in.OptOutPenalty != nil {
		if *in.OptOutPenalty < -100 || *in.OptOutPenalty > 0 {
			return w, fmt.Errorf("emailOptOutPenalty must be between -100 and 0: %w", ErrInvalidInput)
		}
		w.OptOutPenalty = *in.OptOutPenalty
	}
	return w, nil
}

// GetScoringConfig returns the organization's override, or the defaults
// flagged IsDefault when none is saved.
func (s *Service) GetScoringConfig(ctx context.Context, orgID string) (*domain.ScoringConfig, error) {
	cfg, err := s.weights.GetScoringConfig(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return defaultConfig(orgID), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveScoringConfig creates or replaces the organization's override.
// Factors missing from in take their default values.
func (s *Service) SaveScoringConfig(ctx context.Context, orgID, updatedByID string, in WeightsInput) (*domain.ScoringConfig, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required: %w", ErrInvalidInput)
	}
	w, err := in.apply()
	if err != nil {
		return nil, err
	}
	now := s.now()
	cfg := &domain.ScoringConfig{
		OrganizationID: orgID,
		Weights:        w,
		UpdatedAt:      &now,
	}
	if updatedByID != "" {
		cfg.UpdatedByID = &updatedByID
	}
	if err := s.weights.UpsertScoringConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResetScoringConfig removes the override so the defaults apply again.
func (s *Service) ResetScoringConfig(ctx context.Context, orgID string) (*domain.ScoringConfig, error) {
	if err := s.weights.DeleteScoringConfig(ctx, orgID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return defaultConfig(orgID), nil
}

func defaultConfig(orgID string) *domain.ScoringConfig {
	return &domain.ScoringConfig{
		OrganizationID: orgID,
		Weights:        engine.DefaultWeights(),
		IsDefault:      true,
	}
}

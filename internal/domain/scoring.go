package domain

import "time"

// ScoreCategory bands the 0-100 lead score.
type ScoreCategory string

const (
	CategoryHot  ScoreCategory = "HOT"
	CategoryWarm ScoreCategory = "WARM"
	CategoryCool ScoreCategory = "COOL"
	CategoryCold ScoreCategory = "COLD"
)

// Bounds returns the inclusive score range of the category.
func (c ScoreCategory) Bounds() (lo, hi int, ok bool) {
	switch c {
	case CategoryHot:
		return 75, 100, true
	case CategoryWarm:
		return 50, 74, true
	case CategoryCool:
		return 25, 49, true
	case CategoryCold:
		return 0, 24, true
	}
	return 0, 0, false
}

// ScoringWeights holds one concrete coefficient per scoring factor.
// OptOutPenalty is negative.
type ScoringWeights struct {
	EmailOpen            float64 `json:"emailOpenWeight" yaml:"email_open"`
	EmailClick           float64 `json:"emailClickWeight" yaml:"email_click"`
	EmailReply           float64 `json:"emailReplyWeight" yaml:"email_reply"`
	FormSubmission       float64 `json:"formSubmissionWeight" yaml:"form_submission"`
	PropertyInquiry      float64 `json:"propertyInquiryWeight" yaml:"property_inquiry"`
	ScheduledAppointment float64 `json:"scheduledApptWeight" yaml:"scheduled_appointment"`
	CompletedAppointment float64 `json:"completedApptWeight" yaml:"completed_appointment"`
	OptOutPenalty        float64 `json:"emailOptOutPenalty" yaml:"opt_out_penalty"`
	RecencyMax           float64 `json:"recencyBonusMax" yaml:"recency_max"`
	FrequencyMax         float64 `json:"frequencyBonusMax" yaml:"frequency_max"`
}

// ScoringConfig is an organization's explicit per-factor override.
type ScoringConfig struct {
	ID             string         `json:"id,omitempty" db:"id"`
	OrganizationID string         `json:"organizationId" db:"organization_id"`
	Weights        ScoringWeights `json:"weights"`
	IsDefault      bool           `json:"isDefault"`
	UpdatedByID    *string        `json:"updatedById,omitempty" db:"updated_by_id"`
	UpdatedAt      *time.Time     `json:"updatedAt,omitempty" db:"updated_at"`
}

// UserWeightProfile is a per-user personalization. Both coefficients are
// normalized shares in (0,1] that scale the organization/default weights.
type UserWeightProfile struct {
	UserID         string  `json:"userId" db:"user_id"`
	ActivityWeight float64 `json:"activityWeight" db:"activity_weight"`
	RecencyWeight  float64 `json:"recencyWeight" db:"recency_weight"`
}

// Valid reports whether both coefficients are inside (0,1].
func (p UserWeightProfile) Valid() bool {
	return p.ActivityWeight > 0 && p.ActivityWeight <= 1 &&
		p.RecencyWeight > 0 && p.RecencyWeight <= 1
}

// BatchResult aggregates a bulk scoring run.
type BatchResult struct {
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

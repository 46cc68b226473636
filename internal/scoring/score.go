package scoring

import (
	"math"

	"github.com/ignite/crm-engine/internal/domain"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// RecencyBonus is the step bonus for days since the last activity: the full
// cap within a week, half within 30 days, a quarter within 90, else nothing.
func RecencyBonus(days int, limit float64) float64 {
	switch {
	case days <= 7:
		return limit
	case days <= 30:
		return limit * 0.5
	case days <= 90:
		return limit * 0.25
	}
	return 0
}

// FrequencyBonus is the step bonus for activities per week.
func FrequencyBonus(perWeek, limit float64) float64 {
	switch {
	case perWeek >= 5:
		return limit
	case perWeek >= 2:
		return limit * 0.67
	case perWeek >= 1:
		return limit * 0.33
	}
	return 0
}

// Raw is the unrounded, unclamped score.
func Raw(f domain.ActivityFacts, w domain.ScoringWeights) float64 {
	score := float64(f.EmailOpens)*w.EmailOpen +
		float64(f.EmailClicks)*w.EmailClick +
		float64(f.EmailReplies)*w.EmailReply +
		float64(f.FormSubmissions)*w.FormSubmission +
		float64(f.PropertyInquiries)*w.PropertyInquiry +
		float64(f.ScheduledAppointments)*w.ScheduledAppointment +
		float64(f.CompletedAppointments)*w.CompletedAppointment

	score += RecencyBonus(f.DaysSinceLastActivity, w.RecencyMax)
	score += FrequencyBonus(f.ActivityFrequency, w.FrequencyMax)
	if f.EmailOptedOut {
		score += w.OptOutPenalty
	}
	return score
}

// ComputeScore rounds half up and clamps to [0,100].
func ComputeScore(f domain.ActivityFacts, w domain.ScoringWeights) int {
	raw := Raw(f, w)
	if math.IsNaN(raw) {
		return MinScore
	}
	rounded := math.Floor(raw + 0.5)
	switch {
	case rounded < MinScore:
		return MinScore
	case rounded > MaxScore:
		return MaxScore
	}
	return int(rounded)
}

// Category bands a score. Lower bounds are inclusive.
func Category(score int) domain.ScoreCategory {
	switch {
	case score >= 75:
		return domain.CategoryHot
	case score >= 50:
		return domain.CategoryWarm
	case score >= 25:
		return domain.CategoryCool
	}
	return domain.CategoryCold
}

// Package scoring holds the lead scoring math: turning a lead's windowed
// activity into facts, resolving the weight set that applies, and combining
// both into a clamped 0-100 score and its category. Everything here is pure;
// persistence lives in internal/service/scoring.
package scoring

import "github.com/ignite/crm-engine/internal/domain"

// Reference shares a user profile is normalized against. A profile equal to
// these leaves the base weights unchanged.
const (
	referenceActivityWeight = 0.3
	referenceRecencyWeight  = 0.2
)

// DefaultWeights returns the built-in weight set.
func DefaultWeights() domain.ScoringWeights {
	return domain.ScoringWeights{
		EmailOpen:            5,
		EmailClick:           10,
		EmailReply:           15,
		FormSubmission:       20,
		PropertyInquiry:      25,
		ScheduledAppointment: 30,
		CompletedAppointment: 40,
		OptOutPenalty:        -50,
		RecencyMax:           20,
		FrequencyMax:         15,
	}
}

// ResolveWeights picks the single weight set for a lead, most specific
// first. The organization override (or the defaults when org is nil) is the
// base; a valid user profile then scales it. activityWeight scales every
// count weight, the frequency cap and the opt-out penalty; recencyWeight
// scales only the recency cap. An invalid profile is ignored.
func ResolveWeights(user *domain.UserWeightProfile, org *domain.ScoringWeights) domain.ScoringWeights {
	base := DefaultWeights()
	if org != nil {
		base = *org
	}
	if user == nil || !user.Valid() {
		return base
	}

	a := user.ActivityWeight / referenceActivityWeight
	r := user.RecencyWeight / referenceRecencyWeight
	return domain.ScoringWeights{
		EmailOpen:            base.EmailOpen * a,
		EmailClick:           base.EmailClick * a,
		EmailReply:           base.EmailReply * a,
		FormSubmission:       base.FormSubmission * a,
		PropertyInquiry:      base.PropertyInquiry * a,
		ScheduledAppointment: base.ScheduledAppointment * a,
		CompletedAppointment: base.CompletedAppointment * a,
		OptOutPenalty:        base.OptOutPenalty * a,
		RecencyMax:           base.RecencyMax * r,
		FrequencyMax:         base.FrequencyMax * a,
	}
}

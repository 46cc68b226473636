package scoring

import (
	"math"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
)

// WindowDays is the trailing window activity is counted over.
const WindowDays = 90

// NoActivityDays stands in for days-since-last-activity when nothing was
// observed in the window.
const NoActivityDays = 365

// AggregateActivity folds a lead's windowed timeline into ActivityFacts.
//
// Messages count as an open when read, a reply when replied and a click when
// the tracked link was clicked. Activity rows count by type. Appointments
// count as scheduled while SCHEDULED or CONFIRMED and as completed once
// COMPLETED. Every row counts toward TotalActivities.
func AggregateActivity(acts []domain.Activity, optedOut bool, now time.Time) domain.ActivityFacts {
	facts := domain.ActivityFacts{
		TotalActivities:       len(acts),
		DaysSinceLastActivity: NoActivityDays,
		EmailOptedOut:         optedOut,
	}
	if len(acts) == 0 {
		return facts
	}

	oldest, newest := acts[0].OccurredAt, acts[0].OccurredAt
	for _, a := range acts {
		if a.OccurredAt.Before(oldest) {
			oldest = a.OccurredAt
		}
		if a.OccurredAt.After(newest) {
			newest = a.OccurredAt
		}

		switch a.Source {
		case domain.SourceMessage:
			if a.Read {
				facts.EmailOpens++
			}
			if a.Replied {
				facts.EmailReplies++
			}
			if a.Clicked {
				facts.EmailClicks++
			}
		case domain.SourceActivity:
			switch a.Kind {
			case domain.ActivityEmailOpened:
				facts.EmailOpens++
			case domain.ActivityEmailClicked:
				facts.EmailClicks++
			case domain.ActivityFormSubmitted:
				facts.FormSubmissions++
			case domain.ActivityPropertyInquiry:
				facts.PropertyInquiries++
			}
		case domain.SourceAppointment:
			switch a.Kind {
			case domain.AppointmentScheduled, domain.AppointmentConfirmed:
				facts.ScheduledAppointments++
			case domain.AppointmentCompleted:
				facts.CompletedAppointments++
			}
		}
	}

	days := int(math.Floor(now.Sub(newest).Hours() / 24))
	if days < 0 {
		days = 0
	}
	facts.DaysSinceLastActivity = days
	facts.ActivityFrequency = Frequency(len(acts), newest.Sub(oldest))
	return facts
}

// Frequency is activities per week over the observed span, with the span
// floored at one week. A burst of activity inside a few days therefore reads
// as its raw count per week.
func Frequency(total int, span time.Duration) float64 {
	weeks := span.Hours() / (24 * 7)
	if weeks < 1 {
		weeks = 1
	}
	return float64(total) / weeks
}

package domain

import "time"

// ActivitySource identifies which lead timeline an activity row came from.
type ActivitySource string

const (
	SourceMessage     ActivitySource = "message"
	SourceActivity    ActivitySource = "activity"
	SourceAppointment ActivitySource = "appointment"
)

// Activity types and appointment statuses that carry scoring signal.
const (
	ActivityEmailOpened     = "EMAIL_OPENED"
	ActivityEmailClicked    = "EMAIL_CLICKED"
	ActivityFormSubmitted   = "FORM_SUBMITTED"
	ActivityPropertyInquiry = "PROPERTY_INQUIRY"

	AppointmentScheduled = "SCHEDULED"
	AppointmentConfirmed = "CONFIRMED"
	AppointmentCompleted = "COMPLETED"
)

// Activity is one row of a lead's timeline inside the scoring window.
// Kind holds the activity type for SourceActivity rows and the appointment
// status for SourceAppointment rows; it is unused for messages.
type Activity struct {
	ID         string         `json:"id"`
	LeadID     string         `json:"leadId"`
	Source     ActivitySource `json:"source"`
	Kind       string         `json:"kind,omitempty"`
	Read       bool           `json:"read,omitempty"`
	Replied    bool           `json:"replied,omitempty"`
	Clicked    bool           `json:"clicked,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// ActivityFacts is the read-only snapshot the scoring engine consumes.
type ActivityFacts struct {
	EmailOpens            int     `json:"emailOpens"`
	EmailClicks           int     `json:"emailClicks"`
	EmailReplies          int     `json:"emailReplies"`
	FormSubmissions       int     `json:"formSubmissions"`
	PropertyInquiries     int     `json:"propertyInquiries"`
	ScheduledAppointments int     `json:"scheduledAppointments"`
	CompletedAppointments int     `json:"completedAppointments"`
	TotalActivities       int     `json:"totalActivities"`
	DaysSinceLastActivity int     `json:"daysSinceLastActivity"`
	ActivityFrequency     float64 `json:"activityFrequency"`
	EmailOptedOut         bool    `json:"emailOptedOut"`
}

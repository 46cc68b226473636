package domain

import "time"

// LeadStatus enumerates the pipeline states a lead can be in.
type LeadStatus string

const (
	LeadNew         LeadStatus = "NEW"
	LeadContacted   LeadStatus = "CONTACTED"
	LeadQualified   LeadStatus = "QUALIFIED"
	LeadProposal    LeadStatus = "PROPOSAL"
	LeadNegotiation LeadStatus = "NEGOTIATION"
	LeadWon         LeadStatus = "WON"
	LeadLost        LeadStatus = "LOST"
)

// Lead is the mutable CRM aggregate. Score is only written by the scoring
// service; the score category is derived from it and never stored.
type Lead struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organizationId" db:"organization_id"`
	FirstName      string         `json:"firstName" db:"first_name"`
	LastName       string         `json:"lastName" db:"last_name"`
	Email          string         `json:"email" db:"email"`
	Phone          string         `json:"phone,omitempty" db:"phone"`
	Company        string         `json:"company,omitempty" db:"company"`
	Source         string         `json:"source,omitempty" db:"source"`
	Status         LeadStatus     `json:"status" db:"status"`
	Score          int            `json:"score" db:"score"`
	Value          *float64       `json:"value,omitempty" db:"value"`
	AssignedToID   *string        `json:"assignedToId,omitempty" db:"assigned_to_id"`
	EmailOptIn     bool           `json:"emailOptIn" db:"email_opt_in"`
	Tags           []string       `json:"tags" db:"tags"`
	CustomFields   map[string]any `json:"customFields,omitempty" db:"custom_fields"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// Record flattens the lead into the map shape rules are evaluated against.
// Keys use the same field names segment rules are written with. Empty
// optional strings are reported as nil so isNull treats them as unset.
func (l Lead) Record() map[string]any {
	tags := make([]any, len(l.Tags))
	for i, t := range l.Tags {
		tags[i] = t
	}
	rec := map[string]any{
		"id":             l.ID,
		"organizationId": l.OrganizationID,
		"firstName":      l.FirstName,
		"lastName":       l.LastName,
		"email":          l.Email,
		"phone":          nilIfEmpty(l.Phone),
		"company":        nilIfEmpty(l.Company),
		"source":         nilIfEmpty(l.Source),
		"status":         string(l.Status),
		"score":          l.Score,
		"emailOptIn":     l.EmailOptIn,
		"tags":           tags,
		"customFields":   l.CustomFields,
		"createdAt":      l.CreatedAt,
		"updatedAt":      l.UpdatedAt,
		"value":          nil,
		"assignedToId":   nil,
	}
	if l.Value != nil {
		rec["value"] = *l.Value
	}
	if l.AssignedToID != nil {
		rec["assignedToId"] = *l.AssignedToID
	}
	return rec
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// LeadPage is one page of a lead listing plus the total match count.
type LeadPage struct {
	Leads []Lead `json:"leads"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

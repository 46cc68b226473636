package domain

import "time"

// Segment is a named, persisted rule set over leads. MemberCount is a cache
// written on create/update and by explicit refresh; it is not a live view.
type Segment struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description,omitempty" db:"description"`
	Rules          []Rule    `json:"rules" db:"rules"`
	MatchType      MatchMode `json:"matchType" db:"match_type"`
	Color          string    `json:"color,omitempty" db:"color"`
	MemberCount    int       `json:"memberCount" db:"member_count"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

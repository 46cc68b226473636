package segmentation

import (
	"errors"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
)

// Sentinel errors for the segmentation layer.
var (
	ErrNotFound          = errors.New("segment not found")
	ErrInvalidInput      = errors.New("invalid segment")
	ErrRefreshInProgress = errors.New("segment refresh already running")
)

// Filter is a rule set bound to an organization and an evaluation time.
// Relative operators such as daysAgo resolve against Now.
type Filter struct {
	OrganizationID string
	Rules          []domain.Rule
	Match          domain.MatchMode
	Now            time.Time
}

// PageRequest selects a 1-based page. Zero values take the defaults.
type PageRequest struct {
	Page  int
	Limit int
}

// CreateInput describes a new segment.
type CreateInput struct {
	OrganizationID string        `json:"organizationId"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Rules          []domain.Rule `json:"rules"`
	MatchType      string        `json:"matchType,omitempty"`
	Color          string        `json:"color,omitempty"`
}

// UpdateInput changes the fields that are set. A nil Rules slice leaves
// the rules unchanged; an empty non-nil slice clears them.
type UpdateInput struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Rules       []domain.Rule `json:"rules,omitempty"`
	MatchType   *string       `json:"matchType,omitempty"`
	Color       *string       `json:"color,omitempty"`
	IsActive    *bool         `json:"isActive,omitempty"`
}

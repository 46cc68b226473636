// Package segmentation turns persisted rule sets into lead queries: member
// pages, bare counts and the cached member count on each segment.
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/pkg/metrics"
	"github.com/ignite/crm-engine/internal/rules"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Engine is the segmentation service.
type Engine struct {
	segments SegmentStore
	leads    LeadQuerier

	rules    *rules.Registry
	locker   distlock.Locker
	metrics  *metrics.Manager
	now      func() time.Time
	pageSize int
	maxPage  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker guards RefreshSegmentCounts with a distributed lock.
func WithLocker(l distlock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithMetrics records refresh runs.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now. The clock also anchors daysAgo cutoffs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPageSizes sets the default and maximum member page sizes.
func WithPageSizes(def, maxSize int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.pageSize = def
		}
		if maxSize > 0 {
			e.maxPage = maxSize
		}
	}
}

// WithRules replaces the operator registry used for validation and
// in-memory membership checks.
func WithRules(r *rules.Registry) Option {
	return func(e *Engine) { e.rules = r }
}

// NewEngine creates a new segmentation engine.
func NewEngine(segments SegmentStore, leads LeadQuerier, opts ...Option) *Engine {
	e := &Engine{
		segments: segments,
		leads:    leads,
		now:      time.Now,
		pageSize: DefaultPageSize,
		maxPage:  MaxPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = rules.Extended(rules.WithClock(e.now))
	}
	return e
}

func (e *Engine) filter(orgID string, rs []domain.Rule, mode domain.MatchMode) Filter {
	return Filter{OrganizationID: orgID, Rules: rs, Match: mode, Now: e.now().UTC()}
}

// ==========================================
// SEGMENT CRUD
// ==========================================

// CreateSegment validates and stores a new active segment with its initial
// member count.
func (e *Engine) CreateSegment(ctx context.Context, in CreateInput) (*domain.Segment, error) {
	name := strings.TrimSpace(in.Name)
	if in.OrganizationID == "" || name == "" {
		return nil, fmt.Errorf("%w: organization and name are required", ErrInvalidInput)
	}
	mode, ok := domain.ParseMatchMode(in.MatchType)
	if !ok {
		return nil, fmt.Errorf("%w: match type %q", ErrInvalidInput, in.MatchType)
	}
	if err := e.ValidateRules(in.Rules); err != nil {
		return nil, err
	}

	count, err := e.leads.CountLeads(ctx, e.filter(in.OrganizationID, in.Rules, mode))
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	now := e.now().UTC()
	seg := &domain.Segment{
		ID:             uuid.NewString(),
		OrganizationID: in.OrganizationID,
		Name:           name,
		Description:    in.Description,
		Rules:          in.Rules,
		MatchType:      mode,
		Color:          in.Color,
		MemberCount:    count,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.segments.CreateSegment(ctx, seg); err != nil {
		return nil, err
	}

	logger.Info("segment created", "component", "segmentation",
		"segment_id", seg.ID, "organization_id", seg.OrganizationID, "member_count", count)
	return seg, nil
}

// GetSegments lists an organization's segments, newest first.
func (e *Engine) GetSegments(ctx context.Context, orgID string) ([]domain.Segment, error) {
	return e.segments.ListSegments(ctx, orgID, false)
}

// GetSegmentByID returns one segment or ErrNotFound.
func (e *Engine) GetSegmentByID(ctx context.Context, orgID, segmentID string) (*domain.Segment, error) {
	return e.segments.GetSegment(ctx, orgID, segmentID)
}

// UpdateSegment applies in and recounts members against the resulting
// rule set.
func (e *Engine) UpdateSegment(ctx context.Context, orgID, segmentID string, in UpdateInput) (*domain.Segment, error) {
	seg, err := e.segments.GetSegment(ctx, orgID, segmentID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		seg.Name = name
	}
	if in.Description != nil {
		seg.Description = *in.Description
	}
	if in.Color != nil {
		seg.Color = *in.Color
	}
	if in.IsActive != nil {
		seg.IsActive = *in.IsActive
	}
	if in.MatchType != nil {
		mode, ok := domain.ParseMatchMode(*in.MatchType)
		if !ok {
			return nil, fmt.Errorf("%w: match type %q", ErrInvalidInput, *in.MatchType)
		}
		seg.MatchType = mode
	}
	if in.Rules != nil {
		if err := e.ValidateRules(in.Rules); err != nil {
			return nil, err
		}
		seg.Rules = in.Rules
	}

	count, err := e.leads.CountLeads(ctx, e.filter(orgID, seg.Rules, seg.MatchType))
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	seg.MemberCount = count
	seg.UpdatedAt = e.now().UTC()

	if err := e.segments.UpdateSegment(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// DeleteSegment removes a segment.
func (e *Engine) DeleteSegment(ctx context.Context, orgID, segmentID string) error {
	return e.segments.DeleteSegment(ctx, orgID, segmentID)
}

// ==========================================
// MEMBERSHIP
// ==========================================

// GetSegmentMembers returns one page of the segment's current members. The
// total is counted live, not read from MemberCount.
func (e *Engine) GetSegmentMembers(ctx context.Context, orgID, segmentID string, page PageRequest) (*domain.LeadPage, error) {
	seg, err := e.segments.GetSegment(ctx, orgID, segmentID)
	if err != nil {
		return nil, err
	}
	return e.FindMembers(ctx, orgID, seg.Rules, seg.MatchType, page)
}

// FindMembers pages through the leads matching an ad-hoc rule set.
func (e *Engine) FindMembers(ctx context.Context, orgID string, rs []domain.Rule, mode domain.MatchMode, page PageRequest) (*domain.LeadPage, error) {
	p, limit := e.normalize(page)
	f := e.filter(orgID, rs, mode)

	total, err := e.leads.CountLeads(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	leads, err := e.leads.FindLeads(ctx, f, limit, (p-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	return &domain.LeadPage{Leads: leads, Total: total, Page: p, Limit: limit}, nil
}

// CountMembers is the count-only form of FindMembers.
func (e *Engine) CountMembers(ctx context.Context, orgID string, rs []domain.Rule, mode domain.MatchMode) (int, error) {
	return e.leads.CountLeads(ctx, e.filter(orgID, rs, mode))
}

// IsMember evaluates seg against a single lead in memory.
func (e *Engine) IsMember(seg *domain.Segment, lead domain.Lead) bool {
	if lead.OrganizationID != seg.OrganizationID {
		return false
	}
	return e.rules.EvaluateAt(lead.Record(), seg.Rules, seg.MatchType, e.now().UTC())
}

func (e *Engine) normalize(page PageRequest) (int, int) {
	p, limit := page.Page, page.Limit
	if p < 1 {
		p = 1
	}
	if limit < 1 {
		limit = e.pageSize
	}
	if limit > e.maxPage {
		limit = e.maxPage
	}
	return p, limit
}

// ==========================================
// REFRESH
// ==========================================

func refreshLockKey(orgID string) string {
	return "segments:refresh:" + orgID
}

// RefreshSegmentCounts recounts every active segment of an organization
// and returns how many were updated. A failing segment is logged and
// skipped; the failures are joined into the returned error.
func (e *Engine) RefreshSegmentCounts(ctx context.Context, orgID string) (int, error) {
	var refreshed int
	var errs []error

	err := distlock.Run(ctx, e.locker, refreshLockKey(orgID), func(ctx context.Context) error {
		segments, err := e.segments.ListSegments(ctx, orgID, true)
		if err != nil {
			return fmt.Errorf("list active segments: %w", err)
		}
		for _, seg := range segments {
			if err := ctx.Err(); err != nil {
				return err
			}
			count, err := e.leads.CountLeads(ctx, e.filter(orgID, seg.Rules, seg.MatchType))
			if err == nil {
				err = e.segments.UpdateMemberCount(ctx, seg.ID, count)
			}
			if err != nil {
				logger.Error("segment refresh failed", "component", "segmentation",
					"segment_id", seg.ID, "organization_id", orgID, "error", err)
				errs = append(errs, fmt.Errorf("segment %s: %w", seg.ID, err))
				continue
			}
			refreshed++
		}
		return nil
	})
	if errors.Is(err, distlock.ErrHeld) {
		return 0, fmt.Errorf("%w: %s", ErrRefreshInProgress, orgID)
	}
	if err != nil {
		return refreshed, err
	}

	e.metrics.SegmentsRefreshed(refreshed, e.now())
	logger.Info("segment counts refreshed", "component", "segmentation",
		"organization_id", orgID, "refreshed", refreshed, "failed", len(errs))
	return refreshed, errors.Join(errs...)
}

// ==========================================
// VALIDATION
// ==========================================

// ValidateRules rejects rules without a field or operator. Unknown
// operators are accepted with a warning and never match.
func (e *Engine) ValidateRules(rs []domain.Rule) error {
	var problems []string
	for i, r := range rs {
		if strings.TrimSpace(r.Field) == "" {
			problems = append(problems, fmt.Sprintf("rule %d: field is required", i))
		}
		if strings.TrimSpace(r.Operator) == "" {
			problems = append(problems, fmt.Sprintf("rule %d: operator is required", i))
			continue
		}
		if !e.rules.Has(r.Operator) {
			logger.Warn("segment rule uses unknown operator", "component", "segmentation",
				"operator", r.Operator, "field", r.Field)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// Operators lists the operator names segment rules may use.
func (e *Engine) Operators() []string {
	return e.rules.Operators()
}

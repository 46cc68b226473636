package segmentation

import (
	"context"

	"github.com/ignite/crm-engine/internal/domain"
)

// SegmentStore persists segment definitions. Implemented by Store.
type SegmentStore interface {
	CreateSegment(ctx context.Context, seg *domain.Segment) error
	GetSegment(ctx context.Context, orgID, segmentID string) (*domain.Segment, error)
	ListSegments(ctx context.Context, orgID string, activeOnly bool) ([]domain.Segment, error)
	UpdateSegment(ctx context.Context, seg *domain.Segment) error
	UpdateMemberCount(ctx context.Context, segmentID string, count int) error
	DeleteSegment(ctx context.Context, orgID, segmentID string) error
}

// LeadQuerier runs a Filter against the lead store. FindLeads returns leads
// newest first with a stable tiebreak so pages never overlap.
type LeadQuerier interface {
	CountLeads(ctx context.Context, f Filter) (int, error)
	FindLeads(ctx context.Context, f Filter, limit, offset int) ([]domain.Lead, error)
}

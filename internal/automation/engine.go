// Package automation detects which workflows an inbound domain event fires
// and durably queues a PENDING execution for each match. Running the
// workflow actions belongs to a downstream executor.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/pkg/metrics"
	"github.com/ignite/crm-engine/internal/pkg/sanitize"
	"github.com/ignite/crm-engine/internal/rules"
)

// ErrUnknownTrigger is returned for events whose type is not a known
// trigger type.
var ErrUnknownTrigger = errors.New("unknown trigger type")

// WorkflowStore is the persistence the detector needs.
type WorkflowStore interface {
	// ListActiveByTrigger returns active workflows of the trigger type,
	// restricted to orgID when it is non-empty.
	ListActiveByTrigger(ctx context.Context, orgID string, trigger domain.TriggerType) ([]domain.Workflow, error)

	// QueueExecution inserts the PENDING execution and bumps the workflow's
	// run counter and last run time.
	QueueExecution(ctx context.Context, exec *domain.WorkflowExecution) error
}

// Detector matches events to workflows.
type Detector struct {
	store       WorkflowStore
	rules       *rules.Registry
	metrics     *metrics.Manager
	concurrency int
	now         func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithRules replaces the operator registry used for trigger conditions.
func WithRules(r *rules.Registry) Option {
	return func(d *Detector) { d.rules = r }
}

// WithMetrics records match and failure counts.
func WithMetrics(m *metrics.Manager) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithConcurrency bounds parallel workflow evaluation.
func WithConcurrency(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector using the base condition operators.
func NewDetector(store WorkflowStore, opts ...Option) *Detector {
	d := &Detector{
		store:       store,
		rules:       rules.Base(),
		concurrency: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectTriggers loads the active workflows for event.Type, evaluates each
// one's conditions (ALL) against event.Data and queues a PENDING execution
// per match. It returns the workflows that were queued, in candidate order.
//
// A candidate lookup failure aborts with nothing queued. A workflow with
// malformed conditions is logged and skipped. Queueing failures do not stop
// other workflows; they are joined into the returned error alongside the
// workflows that were queued.
func (d *Detector) DetectTriggers(ctx context.Context, event domain.TriggerEvent) ([]domain.Workflow, error) {
	if !event.Type.Valid() {
		return nil, fmt.Errorf("%q: %w", event.Type, ErrUnknownTrigger)
	}

	candidates, err := d.store.ListActiveByTrigger(ctx, event.OrganizationID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("list workflows for %s: %w", event.Type, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	now := d.now()
	meta := domain.ExecutionMetadata{
		EventData: sanitize.Map(data),
		QueuedAt:  now.UTC().Format(sanitize.TimeLayout),
	}

	queued := make([]bool, len(candidates))
	errs := make([]error, len(candidates))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range candidates {
		i := i
		wf := &candidates[i]
		g.Go(func() error {
			if !wf.IsActive {
				return nil
			}
			matched, err := d.matches(wf, data, now)
			if err != nil {
				d.metrics.EvaluationFailed()
				logger.Warn("skipping workflow with invalid conditions", "component", "automation",
					"workflow_id", wf.ID, "trigger", string(event.Type), "error", err)
				return nil
			}
			if !matched {
				return nil
			}

			exec := &domain.WorkflowExecution{
				ID:         uuid.NewString(),
				WorkflowID: wf.ID,
				Status:     domain.ExecutionPending,
				Metadata:   meta,
				StartedAt:  now,
			}
			if event.LeadID != "" {
				leadID := event.LeadID
				exec.LeadID = &leadID
			}
			if err := d.store.QueueExecution(ctx, exec); err != nil {
				d.metrics.EvaluationFailed()
				logger.Error("queue workflow execution failed", "component", "automation",
					"workflow_id", wf.ID, "lead_id", event.LeadID, "error", err)
				errs[i] = fmt.Errorf("queue workflow %s: %w", wf.ID, err)
				return nil
			}
			d.metrics.TriggerMatched(string(event.Type))
			d.metrics.ExecutionQueued()
			queued[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var matched []domain.Workflow
	for i, ok := range queued {
		if ok {
			matched = append(matched, candidates[i])
		}
	}

	logger.Info("triggers detected", "component", "automation", "trigger", string(event.Type),
		"candidates", len(candidates), "queued", len(matched), "lead_id", event.LeadID)
	return matched, errors.Join(errs...)
}

func (d *Detector) matches(wf *domain.Workflow, data map[string]any, now time.Time) (bool, error) {
	conds, err := ParseConditions(wf.TriggerData)
	if err != nil {
		return false, err
	}
	if len(conds) == 0 {
		return true, nil
	}
	return d.rules.EvaluateAt(data, conds, domain.MatchAll, now), nil
}

package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-engine/internal/domain"
)

// memStore is an in-memory WorkflowStore for testing.
type memStore struct {
	mu        sync.Mutex
	workflows []domain.Workflow
	execs     []domain.WorkflowExecution
	listErr   error
	queueErr  map[string]error
}

func (m *memStore) ListActiveByTrigger(_ context.Context, orgID string, trigger domain.TriggerType) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Workflow
	for _, wf := range m.workflows {
		if wf.TriggerType != trigger || !wf.IsActive {
			continue
		}
		if orgID != "" && wf.OrganizationID != orgID {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

func (m *memStore) QueueExecution(_ context.Context, exec *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.queueErr[exec.WorkflowID]; err != nil {
		return err
	}
	m.execs = append(m.execs, *exec)
	for i := range m.workflows {
		if m.workflows[i].ID == exec.WorkflowID {
			m.workflows[i].Executions++
			at := exec.StartedAt
			m.workflows[i].LastRunAt = &at
		}
	}
	return nil
}

func (m *memStore) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.workflows {
		if m.workflows[i].ID == id {
			m.workflows[i].IsActive = active
		}
	}
}

func (m *memStore) executionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.execs)
}

var fixedNow = time.Date(2026, 7, 4, 9, 30, 0, 0, time.UTC)

func newTestDetector(store WorkflowStore) *Detector {
	return NewDetector(store, WithClock(func() time.Time { return fixedNow }), WithConcurrency(4))
}

func workflow(id string, trigger domain.TriggerType, conditions string) domain.Workflow {
	wf := domain.Workflow{ID: id, OrganizationID: "org-1", Name: id, TriggerType: trigger, IsActive: true}
	if conditions != "" {
		wf.TriggerData = json.RawMessage(conditions)
	}
	return wf
}

func ids(wfs []domain.Workflow) []string {
	out := make([]string, len(wfs))
	for i, wf := range wfs {
		out[i] = wf.ID
	}
	return out
}

func TestDetectTriggers_MatchesConditions(t *testing.T) {
	store := &memStore{workflows: []domain.Workflow{
		workflow("qualified", domain.TriggerLeadStatusChanged,
			`{"conditions":[{"field":"newStatus","operator":"equals","value":"QUALIFIED"}]}`),
		workflow("lost", domain.TriggerLeadStatusChanged,
			`{"conditions":[{"field":"newStatus","operator":"equals","value":"LOST"}]}`),
		workflow("any-status", domain.TriggerLeadStatusChanged, ""),
		workflow("created", domain.TriggerLeadCreated, ""),
	}}

	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{
		Type:   domain.TriggerLeadStatusChanged,
		Data:   map[string]any{"newStatus": "QUALIFIED", "oldStatus": "NEW"},
		LeadID: "lead-9",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"qualified", "any-status"}, ids(got))

	require.Len(t, store.execs, 2)
	for _, exec := range store.execs {
		assert.Equal(t, domain.ExecutionPending, exec.Status)
		require.NotNil(t, exec.LeadID)
		assert.Equal(t, "lead-9", *exec.LeadID)
		assert.Equal(t, "2026-07-04T09:30:00.000Z", exec.Metadata.QueuedAt)
		assert.Equal(t, "QUALIFIED", exec.Metadata.EventData["newStatus"])
	}
	assert.Equal(t, 1, store.workflows[0].Executions)
	require.NotNil(t, store.workflows[0].LastRunAt)
	assert.Equal(t, 0, store.workflows[1].Executions)
}

func TestDetectTriggers_UnconditionedAlwaysMatches(t *testing.T) {
	store := &memStore{workflows: []domain.Workflow{
		workflow("no-data", domain.TriggerTagAdded, ""),
		workflow("null-data", domain.TriggerTagAdded, `null`),
		workflow("empty-conditions", domain.TriggerTagAdded, `{"conditions":[]}`),
	}}
	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{Type: domain.TriggerTagAdded})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDetectTriggers_IgnoresInactiveWorkflows(t *testing.T) {
	store := &memStore{workflows: []domain.Workflow{workflow("w1", domain.TriggerLeadCreated, "")}}
	d := newTestDetector(store)
	event := domain.TriggerEvent{Type: domain.TriggerLeadCreated, Data: map[string]any{"source": "web"}}

	got, err := d.DetectTriggers(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, got, 1)

	store.setActive("w1", false)
	got, err = d.DetectTriggers(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, store.executionCount())
}

func TestDetectTriggers_InactiveCandidateNeverMatches(t *testing.T) {
	// A store that returns inactive rows must still not fire them.
	inactive := workflow("stale", domain.TriggerLeadCreated, "")
	inactive.IsActive = false
	store := &leakyStore{memStore: memStore{workflows: []domain.Workflow{inactive}}}

	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{Type: domain.TriggerLeadCreated})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.executionCount())
}

type leakyStore struct{ memStore }

func (l *leakyStore) ListActiveByTrigger(_ context.Context, _ string, _ domain.TriggerType) ([]domain.Workflow, error) {
	return l.workflows, nil
}

func TestDetectTriggers_MalformedWorkflowIsolated(t *testing.T) {
	store := &memStore{workflows: []domain.Workflow{
		workflow("broken-json", domain.TriggerLeadAssigned, `{"conditions":`),
		workflow("no-field", domain.TriggerLeadAssigned, `{"conditions":[{"operator":"equals","value":1}]}`),
		workflow("unknown-op", domain.TriggerLeadAssigned, `{"conditions":[{"field":"a","operator":"regex","value":"x"}]}`),
		workflow("good", domain.TriggerLeadAssigned, `{"conditions":[{"field":"assignee","operator":"exists"}]}`),
	}}
	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{
		Type: domain.TriggerLeadAssigned,
		Data: map[string]any{"assignee": "u-1", "a": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(got))
}

func TestDetectTriggers_LookupFailureAborts(t *testing.T) {
	store := &memStore{
		workflows: []domain.Workflow{workflow("w1", domain.TriggerLeadCreated, "")},
		listErr:   errors.New("connection refused"),
	}
	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{Type: domain.TriggerLeadCreated})
	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Zero(t, store.executionCount())
}

func TestDetectTriggers_QueueFailureIsolated(t *testing.T) {
	boom := errors.New("insert failed")
	store := &memStore{
		workflows: []domain.Workflow{
			workflow("w1", domain.TriggerEmailOpened, ""),
			workflow("w2", domain.TriggerEmailOpened, ""),
			workflow("w3", domain.TriggerEmailOpened, ""),
		},
		queueErr: map[string]error{"w2": boom},
	}
	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{Type: domain.TriggerEmailOpened})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"w1", "w3"}, ids(got))
	assert.Equal(t, 2, store.executionCount())
}

func TestDetectTriggers_UnknownTrigger(t *testing.T) {
	_, err := newTestDetector(&memStore{}).DetectTriggers(context.Background(), domain.TriggerEvent{Type: "LEAD_EXPLODED"})
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestDetectTriggers_ScopesByOrganization(t *testing.T) {
	other := workflow("other-org", domain.TriggerLeadCreated, "")
	other.OrganizationID = "org-2"
	store := &memStore{workflows: []domain.Workflow{workflow("mine", domain.TriggerLeadCreated, ""), other}}

	got, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{
		Type: domain.TriggerLeadCreated, OrganizationID: "org-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, ids(got))
}

func TestDetectTriggers_SnapshotIsJSONSafe(t *testing.T) {
	store := &memStore{workflows: []domain.Workflow{workflow("w1", domain.TriggerScoreThreshold,
		`{"conditions":[{"field":"score","operator":"greater_than","value":70}]}`)}}
	changedAt := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

	_, err := newTestDetector(store).DetectTriggers(context.Background(), domain.TriggerEvent{
		Type: domain.TriggerScoreThreshold,
		Data: map[string]any{"score": 82, "changedAt": changedAt, "callback": func() {}},
	})
	require.NoError(t, err)
	require.Len(t, store.execs, 1)

	snap := store.execs[0].Metadata.EventData
	assert.Equal(t, "2026-07-01T08:00:00.000Z", snap["changedAt"])
	assert.NotContains(t, snap, "callback")
	_, err = json.Marshal(store.execs[0].Metadata)
	assert.NoError(t, err)
}

func TestParseConditions(t *testing.T) {
	rules, err := ParseConditions(json.RawMessage(` {"conditions":[{"field":"tag","operator":"contains","value":"vip"}]} `))
	require.NoError(t, err)
	assert.Equal(t, []domain.Rule{{Field: "tag", Operator: "contains", Value: "vip"}}, rules)

	rules, err = ParseConditions(nil)
	require.NoError(t, err)
	assert.Nil(t, rules)

	_, err = ParseConditions(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

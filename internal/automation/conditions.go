package automation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ignite/crm-engine/internal/domain"
)

// triggerData is the stored shape of a workflow's trigger configuration.
type triggerData struct {
	Conditions []domain.Rule `json:"conditions"`
}

// ParseConditions decodes a workflow's trigger data. A missing document or
// one without conditions yields no rules, which matches unconditionally.
func ParseConditions(raw json.RawMessage) ([]domain.Rule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var td triggerData
	if err := json.Unmarshal(raw, &td); err != nil {
		return nil, fmt.Errorf("decode trigger conditions: %w", err)
	}
	for i, r := range td.Conditions {
		if r.Field == "" || r.Operator == "" {
			return nil, fmt.Errorf("condition %d: field and operator are required", i)
		}
	}
	return td.Conditions, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/crm-engine/internal/domain"
)

func newTriggersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Detect workflow triggers",
	}

	var (
		orgID  string
		leadID string
		data   string
	)
	fire := &cobra.Command{
		Use:   "fire <trigger-type>",
		Short: "Queue executions for every active workflow the event matches",
		Long: `Evaluate an event against the active workflows of its trigger type and
queue a PENDING execution for each match.

Trigger types: LEAD_CREATED, LEAD_STATUS_CHANGED, LEAD_ASSIGNED, TAG_ADDED,
EMAIL_OPENED, SCORE_THRESHOLD, CAMPAIGN_COMPLETED, TIME_BASED`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			event := domain.TriggerEvent{
				Type:           domain.TriggerType(strings.ToUpper(args[0])),
				LeadID:         leadID,
				OrganizationID: orgID,
			}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}
			matched, err := a.triggerDetector().DetectTriggers(ctx, event)
			if perr := printJSON(cmd, matched); perr != nil {
				return perr
			}
			return err
		}),
	}
	fire.Flags().StringVar(&orgID, "org", "", "only consider this organization's workflows")
	fire.Flags().StringVar(&leadID, "lead", "", "lead the event concerns")
	fire.Flags().StringVar(&data, "data", "", "event data as a JSON object")

	cmd.AddCommand(fire)
	return cmd
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/repository/postgres"
	"github.com/ignite/crm-engine/internal/service/scoring"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute and manage lead scores",
	}

	var userID string

	lead := &cobra.Command{
		Use:   "lead <lead-id>",
		Short: "Rescore one lead",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			svc := a.scoringService()
			score, err := svc.UpdateLeadScore(ctx, args[0], userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"leadId":   args[0],
				"score":    score,
				"category": svc.GetScoreCategory(score),
			})
		}),
	}
	lead.Flags().StringVar(&userID, "user", "", "score with this user's weight profile")

	many := &cobra.Command{
		Use:   "many <lead-id>...",
		Short: "Rescore a list of leads",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			res, err := a.scoringService().UpdateMultipleLeadScores(ctx, args, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	many.Flags().StringVar(&userID, "user", "", "score with this user's weight profile")

	all := &cobra.Command{
		Use:   "all",
		Short: "Rescore every lead; profile owners' leads use their weights",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			res, err := a.scoringService().UpdateAllLeadScores(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}

	category := &cobra.Command{
		Use:   "category <org-id> <HOT|WARM|COOL|COLD>",
		Short: "List an organization's leads in a score category",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			cat := domain.ScoreCategory(strings.ToUpper(args[1]))
			leads, err := a.scoringService().GetLeadsByScoreCategory(ctx, args[0], cat)
			if err != nil {
				return err
			}
			return printJSON(cmd, leads)
		}),
	}

	cmd.AddCommand(lead, many, all, category, newScoreConfigCmd(), newScoreProfileCmd())
	return cmd
}

// weightFlags maps each weight flag onto its WeightsInput field.
var weightFlags = []struct {
	name  string
	usage string
	field func(in *scoring.WeightsInput) **float64
}{
	{"email-open", "points per email open", func(in *scoring.WeightsInput) **float64 { return &in.EmailOpen }},
	{"email-click", "points per email click", func(in *scoring.WeightsInput) **float64 { return &in.EmailClick }},
	{"email-reply", "points per email reply", func(in *scoring.WeightsInput) **float64 { return &in.EmailReply }},
	{"form-submission", "points per form submission", func(in *scoring.WeightsInput) **float64 { return &in.FormSubmission }},
	{"property-inquiry", "points per property inquiry", func(in *scoring.WeightsInput) **float64 { return &in.PropertyInquiry }},
	{"scheduled-appointment", "points per scheduled appointment", func(in *scoring.WeightsInput) **float64 { return &in.ScheduledAppointment }},
	{"completed-appointment", "points per completed appointment", func(in *scoring.WeightsInput) **float64 { return &in.CompletedAppointment }},
	{"opt-out-penalty", "penalty for email opt-out (-100..0)", func(in *scoring.WeightsInput) **float64 { return &in.OptOutPenalty }},
	{"recency-max", "maximum recency bonus", func(in *scoring.WeightsInput) **float64 { return &in.RecencyMax }},
	{"frequency-max", "maximum frequency bonus", func(in *scoring.WeightsInput) **float64 { return &in.FrequencyMax }},
}

func newScoreConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change an organization's scoring weights",
	}

	get := &cobra.Command{
		Use:   "get <org-id>",
		Short: "Show the effective weights",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			cfg, err := a.scoringService().GetScoringConfig(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		}),
	}

	var updatedBy string
	set := &cobra.Command{
		Use:   "set <org-id>",
		Short: "Save an override; weights not given take their defaults",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var in scoring.WeightsInput
			for _, wf := range weightFlags {
				if !cmd.Flags().Changed(wf.name) {
					continue
				}
				v, err := cmd.Flags().GetFloat64(wf.name)
				if err != nil {
					return err
				}
				*wf.field(&in) = &v
			}
			cfg, err := a.scoringService().SaveScoringConfig(ctx, args[0], updatedBy, in)
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		}),
	}
	for _, wf := range weightFlags {
		set.Flags().Float64(wf.name, 0, wf.usage)
	}
	set.Flags().StringVar(&updatedBy, "updated-by", "", "user id recorded on the override")

	reset := &cobra.Command{
		Use:   "reset <org-id>",
		Short: "Drop the override and fall back to defaults",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			cfg, err := a.scoringService().ResetScoringConfig(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		}),
	}

	cmd.AddCommand(get, set, reset)
	return cmd
}

func newScoreProfileCmd() *cobra.Command {
	var activity, recency float64
	cmd := &cobra.Command{
		Use:   "profile <user-id>",
		Short: "Save a user's personal weight profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			p := domain.UserWeightProfile{UserID: args[0], ActivityWeight: activity, RecencyWeight: recency}
			if err := postgres.NewWeightRepo(a.db).SaveUserProfile(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved profile for %s\n", args[0])
			return nil
		}),
	}
	cmd.Flags().Float64Var(&activity, "activity", 0.3, "activity share in (0,1]; 0.3 leaves activity weights unchanged")
	cmd.Flags().Float64Var(&recency, "recency", 0.2, "recency share in (0,1]; 0.2 leaves the recency bonus unchanged")
	return cmd
}

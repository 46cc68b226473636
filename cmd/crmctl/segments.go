package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/repository/postgres"
	"github.com/ignite/crm-engine/internal/segmentation"
)

func readRules(path string) ([]domain.Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rs []domain.Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rs, nil
}

func newSegmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "segments",
		Aliases: []string{"segment"},
		Short:   "Manage lead segments",
	}

	list := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List an organization's segments",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			segs, err := a.segmentEngine().GetSegments(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, segs)
		}),
	}

	get := &cobra.Command{
		Use:   "get <org-id> <segment-id>",
		Short: "Show one segment",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			seg, err := a.segmentEngine().GetSegmentByID(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, seg)
		}),
	}

	var in segmentation.CreateInput
	var rulesFile string
	create := &cobra.Command{
		Use:   "create <org-id>",
		Short: "Create a segment from a JSON rules file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			rs, err := readRules(rulesFile)
			if err != nil {
				return err
			}
			in.OrganizationID = args[0]
			in.Rules = rs
			seg, err := a.segmentEngine().CreateSegment(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd, seg)
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "segment name")
	create.Flags().StringVar(&in.Description, "description", "", "segment description")
	create.Flags().StringVar(&in.MatchType, "match", "all", "combine rules with all or any")
	create.Flags().StringVar(&in.Color, "color", "", "display color")
	create.Flags().StringVar(&rulesFile, "rules", "", "JSON file holding a [{field, operator, value}] list")
	_ = create.MarkFlagRequired("name")

	var updateRules string
	update := &cobra.Command{
		Use:   "update <org-id> <segment-id>",
		Short: "Change a segment and recount its members",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var up segmentation.UpdateInput
			flags := cmd.Flags()
			for name, dst := range map[string]**string{
				"name":        &up.Name,
				"description": &up.Description,
				"match":       &up.MatchType,
				"color":       &up.Color,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = &v
				}
			}
			if flags.Changed("active") {
				v, _ := flags.GetBool("active")
				up.IsActive = &v
			}
			if updateRules != "" {
				rs, err := readRules(updateRules)
				if err != nil {
					return err
				}
				if rs == nil {
					rs = []domain.Rule{}
				}
				up.Rules = rs
			}
			seg, err := a.segmentEngine().UpdateSegment(ctx, args[0], args[1], up)
			if err != nil {
				return err
			}
			return printJSON(cmd, seg)
		}),
	}
	update.Flags().String("name", "", "segment name")
	update.Flags().String("description", "", "segment description")
	update.Flags().String("match", "", "combine rules with all or any")
	update.Flags().String("color", "", "display color")
	update.Flags().Bool("active", true, "whether refreshes include the segment")
	update.Flags().StringVar(&updateRules, "rules", "", "JSON file replacing the rule list")

	del := &cobra.Command{
		Use:   "delete <org-id> <segment-id>",
		Short: "Delete a segment",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.segmentEngine().DeleteSegment(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted segment %s\n", args[1])
			return nil
		}),
	}

	var page segmentation.PageRequest
	members := &cobra.Command{
		Use:   "members <org-id> <segment-id>",
		Short: "List a page of a segment's current members, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			p, err := a.segmentEngine().GetSegmentMembers(ctx, args[0], args[1], page)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		}),
	}
	members.Flags().IntVar(&page.Page, "page", 1, "1-based page number")
	members.Flags().IntVar(&page.Limit, "limit", 0, "page size (default from config)")

	refresh := &cobra.Command{
		Use:   "refresh <org-id>",
		Short: "Recount members of every active segment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			n, err := a.segmentEngine().RefreshSegmentCounts(ctx, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d segments\n", n)
			return err
		}),
	}

	operators := &cobra.Command{
		Use:   "operators",
		Short: "List the operators segment rules may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := segmentation.NewEngine(nil, nil)
			return printJSON(cmd, e.Operators())
		},
	}

	check := &cobra.Command{
		Use:   "check <org-id> <segment-id> <lead-id>",
		Short: "Evaluate a segment's rules against one lead without touching counts",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			eng := a.segmentEngine()
			seg, err := eng.GetSegmentByID(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			lead, err := postgres.NewLeadRepo(a.db).GetLead(ctx, args[2])
			if err != nil {
				return fmt.Errorf("lead %s: %w", args[2], err)
			}
			return printJSON(cmd, map[string]any{
				"segmentId": seg.ID,
				"leadId":    lead.ID,
				"member":    eng.IsMember(seg, *lead),
			})
		}),
	}

	cmd.AddCommand(list, get, create, update, del, members, refresh, check, operators)
	return cmd
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ignite/crm-engine/internal/repository/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|<version>]",
		Short: "Apply the embedded schema migrations",
		Long: `Apply the embedded schema migrations.

  crmctl migrate          migrate to the latest version
  crmctl migrate down     roll back every migration
  crmctl migrate 1        migrate to version 1`,
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(func(_ context.Context, a *app, cmd *cobra.Command, args []string) error {
			target := -1
			if len(args) == 1 {
				switch args[0] {
				case "up":
				case "down":
					target = 0
				default:
					v, err := strconv.Atoi(args[0])
					if err != nil || v < 1 {
						return fmt.Errorf("invalid migration target %q", args[0])
					}
					target = v
				}
			}
			res, err := postgres.Migrate(a.db, target)
			if err != nil {
				return err
			}
			if !res.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "no migration needed, schema at version %d\n", res.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated from version %d to %d\n", res.From, res.To)
			return nil
		}),
	}
}

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/windregistry/masterdata/pkg/application"
)

func newMigrateCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), rt, func(ctx context.Context, m application.MigrationManager) error {
				return m.Run(ctx)
			})
		},
	}

	var format string
	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), rt, func(ctx context.Context, m application.MigrationManager) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), format, statuses)
			})
		},
	}
	status.Flags().StringVarP(&format, "format", "o", "yaml", "output format: json or yaml")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration of every schema",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), rt, func(ctx context.Context, m application.MigrationManager) error {
				return m.Rollback(ctx)
			})
		},
	}

	cmd.AddCommand(status, down)
	return cmd
}

func withMigrations(ctx context.Context, rt *Runtime, fn func(context.Context, application.MigrationManager) error) error {
	sess, err := rt.Open(ctx, OpenOptions{})
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := fn(sess.Ctx, sess.App.Migrations()); err != nil {
		return dbError(err)
	}
	return nil
}

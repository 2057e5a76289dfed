package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"example.com/healthconnect/internal/domain"
	"example.com/healthconnect/internal/record"
)

func newPriorityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority",
		Short: "Inspect or reorder data origin priority per category",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <category>",
		Short: "Print the origins of a category, highest priority first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				return printPriority(ctx, cmd, opts, svc, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <category> <origin>...",
		Short: "Move the given origins to the front of a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				cat := record.Category(strings.ToUpper(args[0]))
				if err := svc.UpdatePriority(ctx, admin(), cat, args[1:]); err != nil {
					return err
				}
				return printPriority(ctx, cmd, opts, svc, args[0])
			})
		},
	})
	return cmd
}

func printPriority(ctx context.Context, cmd *cobra.Command, opts *RootOptions, svc *domain.Service, category string) error {
	origins, err := svc.Priority(ctx, admin(), record.Category(strings.ToUpper(category)))
	if err != nil {
		return err
	}
	return emit(cmd.OutOrStdout(), opts.Format, map[string]any{"category": strings.ToUpper(category), "data_origins": origins}, func(w io.Writer) {
		for i, o := range origins {
			fmt.Fprintf(w, "%d\t%s\n", i+1, o)
		}
	})
}

func newContributorsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contributors",
		Short: "List applications that contributed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				apps, err := svc.ContributorApplications(ctx, admin())
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts.Format, apps, func(w io.Writer) {
					for _, a := range apps {
						fmt.Fprintf(w, "%s\t%s\n", a.PackageName, a.AppName)
					}
				})
			})
		},
	}
}

func newPurgeStagedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-staged",
		Short: "Delete staged migration data and reset the migration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				if err := svc.DeleteAllStagedData(ctx, admin()); err != nil {
					return err
				}
				return printState(ctx, cmd, opts, svc)
			})
		},
	}
}

// Package cli implements the healthctl administration commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/healthconnect/internal/app"
	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/internal/domain"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/record"
)

// AdminPackage is the identity healthctl acts as.
const AdminPackage = "com.android.healthconnect.controller"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the runtime factory.
type RootOptions struct {
	Format string
	Driver string

	// Open builds the runtime; tests replace it.
	Open func(ctx context.Context, cfg config.Config) (*app.Runtime, error)
}

// NewRootCommand creates the healthctl root command.
func NewRootCommand() *cobra.Command {
	return newRoot(&RootOptions{Open: func(ctx context.Context, cfg config.Config) (*app.Runtime, error) {
		return app.Open(ctx, cfg, logger.Named("healthctl"))
	}})
}

func newRoot(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "healthctl",
		Short:         "Administer the health record store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "storage driver override (memory|sqlite|postgres)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newPriorityCommand(opts))
	cmd.AddCommand(newContributorsCommand(opts))
	cmd.AddCommand(newPurgeStagedCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

// admin is the privileged caller used for every store command.
func admin() domain.Caller {
	return domain.Caller{Package: AdminPackage, Permissions: []string{
		record.PermissionManageHealthData, record.PermissionMigrateHealthData,
	}}
}

// withService opens the runtime, runs fn and closes it.
func withService(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *domain.Service) error) error {
	cfg := config.Load()
	if opts.Driver != "" {
		cfg.StorageDriver = opts.Driver
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := opts.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Service)
}

// emit writes v as JSON, or text through the fallback.
func emit(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

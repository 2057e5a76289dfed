package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/healthconnect/internal/domain"
	"example.com/healthconnect/internal/migration"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Drive the data migration state machine",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Block the data API and open the migration window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				if err := svc.StartMigration(ctx, admin()); err != nil {
					return err
				}
				return printState(ctx, cmd, opts, svc)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "write <entities.yaml>",
		Short: "Apply migration entities from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := LoadEntities(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				werr := svc.WriteMigrationData(ctx, admin(), entities)
				if err := printState(ctx, cmd, opts, svc); err != nil {
					return err
				}
				return werr
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "finish",
		Short: "Close the migration window and unblock the data API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				if err := svc.FinishMigration(ctx, admin()); err != nil {
					return err
				}
				return printState(ctx, cmd, opts, svc)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the migration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *domain.Service) error {
				return printState(ctx, cmd, opts, svc)
			})
		},
	})
	return cmd
}

func printState(ctx context.Context, cmd *cobra.Command, opts *RootOptions, svc *domain.Service) error {
	st, err := svc.MigrationState(ctx, admin())
	if err != nil {
		return err
	}
	return emit(cmd.OutOrStdout(), opts.Format, st, func(w io.Writer) {
		fmt.Fprintf(w, "phase=%s applied=%d failed=%d\n", st.Phase, st.Applied, st.Failed)
	})
}

// LoadEntities reads a YAML document of the form `entities: [...]`. Records
// use the same field names as the JSON API.
func LoadEntities(path string) ([]migration.Entity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return ParseEntities(raw)
}

// ParseEntities decodes YAML entities by way of their JSON form.
func ParseEntities(raw []byte) ([]migration.Entity, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse entities yaml: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert entities: %w", err)
	}
	var out struct {
		Entities []migration.Entity `json:"entities"`
	}
	if err := json.Unmarshal(asJSON, &out); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return out.Entities, nil
}

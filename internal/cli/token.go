package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"example.com/healthconnect/internal/config"
	"example.com/healthconnect/pkg/auth"
)

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		pkg   string
		perms []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a calling package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			tok, err := auth.Issue(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, pkg, perms, ttl)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts.Format, map[string]string{"token": tok}, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "calling package name")
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "granted permission (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("package")
	return cmd
}

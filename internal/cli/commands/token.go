package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/asgardtech/pathsec/internal/web/auth"
)

var knownScopes = []string{auth.ScopeValidate, auth.ScopeSanitize}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 bearer token signed with auth.jwt_secret.

A token without scopes may call every operation. The validate scope covers
validate-path, detect-traversal, validate-filename and validate-project-name;
the sanitize scope covers the sanitize-* operations.`,
		Example: `  # Token for a CI job that only validates
  pathsec token --subject ci --scope validate --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set (PATHSEC_AUTH_JWT_SECRET)")
			}
			if unknown := lo.Without(scopes, knownScopes...); len(unknown) > 0 {
				return fmt.Errorf("unknown scope %q (want %s)", unknown[0], strings.Join(knownScopes, " or "))
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateToken(subject, lo.Uniq(scopes))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, used as the rate limit key")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to grant: validate, sanitize (default all)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

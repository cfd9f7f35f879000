package cmd

import (
	"time"

	"live-core/internal/config"
	"live-core/internal/server"

	"github.com/spf13/cobra"
)

// newTokenCommand 签发开发用连接令牌
func newTokenCommand(opts *options) *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a connect token for a push server with auth enabled",
		Long: `Mint an HS256 connect token. The secret defaults to server.auth.jwt_secret
from the loaded configuration, --org and --role set the claims.

Example:
  live token --secret dev-secret --org 1 --role Editor --subject alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.Load(opts.configFile, config.AppTypeClient)
				if err != nil {
					return err
				}
				secret = cfg.Server.Auth.JWTSecret.Value()
			}
			orgID := opts.orgID
			if orgID <= 0 {
				orgID = server.DefaultOrgID
			}
			role := opts.orgRole
			if role == "" {
				role = server.RoleViewer
			}
			token, err := server.IssueToken(secret, subject, orgID, role, ttl)
			if err != nil {
				return err
			}
			opts.output(cmd).Plain("%s", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject (user)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

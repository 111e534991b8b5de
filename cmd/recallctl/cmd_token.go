package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recall-api/pkg/utils"
)

var (
	tokenSubject string
	tokenClient  string
	tokenScopes  []string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for an API client",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "owner", "token subject")
	tokenCmd.Flags().StringVar(&tokenClient, "client", "", "client name, e.g. voice-assistant")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scopes", []string{utils.ScopeRead}, "granted scopes: read, ingest")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "lifetime, defaults to security.jwt.expiration")
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret := cfg.Security.JWT.Secret
	if secret == "" {
		return errors.New("security.jwt.secret is not configured")
	}
	scopes, err := normalizeScopes(tokenScopes)
	if err != nil {
		return err
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Security.JWT.Expiration
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token, err := utils.NewJWTManager(secret, cfg.Security.JWT.Issuer).GenerateToken(tokenSubject, tokenClient, scopes, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func normalizeScopes(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		if s != utils.ScopeRead && s != utils.ScopeIngest {
			return nil, fmt.Errorf("unknown scope %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	return out, nil
}

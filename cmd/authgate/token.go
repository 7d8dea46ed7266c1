package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"authgate/core"

	"github.com/spf13/cobra"
)

var (
	issueAccountID int64
	issueType      string
	issueNickname  string
	issueRole      string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or inspect tokens with the configured signing key",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token for an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadTokenEngine()
		if err != nil {
			return err
		}

		role := core.Role(issueRole)
		if !role.Valid() {
			return fmt.Errorf("invalid role %q (USER or ADMIN)", issueRole)
		}

		extra := map[string]string{"role": string(role)}
		if issueNickname != "" {
			extra["nickname"] = issueNickname
		}

		token, err := engine.Issue(issueAccountID, core.TokenType(issueType), extra)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Validate a token and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadTokenEngine()
		if err != nil {
			return err
		}

		claims, err := engine.Validate(args[0])
		if claims != nil {
			if printErr := printClaims(cmd.OutOrStdout(), claims); printErr != nil {
				return printErr
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", core.ErrorCode(err), err)
		}
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Int64Var(&issueAccountID, "account-id", 0, "Account id (token subject)")
	tokenIssueCmd.Flags().StringVar(&issueType, "type", string(core.TokenAccess), "Token type: access or refresh")
	tokenIssueCmd.Flags().StringVar(&issueNickname, "nickname", "", "Nickname claim")
	tokenIssueCmd.Flags().StringVar(&issueRole, "role", string(core.RoleUser), "Role claim: USER or ADMIN")
	tokenIssueCmd.MarkFlagRequired("account-id")

	tokenCmd.AddCommand(tokenIssueCmd, tokenInspectCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadTokenEngine() (*core.TokenEngine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return core.NewTokenEngineFromConfig(&cfg.Core.JWT)
}

func printClaims(w io.Writer, claims *core.TokenClaims) error {
	out := struct {
		Subject   string            `json:"sub"`
		Type      core.TokenType    `json:"type"`
		ID        string            `json:"jti,omitempty"`
		IssuedAt  string            `json:"iat,omitempty"`
		ExpiresAt string            `json:"exp"`
		Extra     map[string]string `json:"extra,omitempty"`
	}{
		Subject:   claims.Subject,
		Type:      claims.Type,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
		Extra:     claims.Extra,
	}
	if !claims.IssuedAt.IsZero() {
		out.IssuedAt = claims.IssuedAt.UTC().Format(time.RFC3339)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to print claims: %w", err)
	}
	return nil
}

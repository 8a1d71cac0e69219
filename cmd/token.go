package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/youchews/youchews-api/internal/auth"
)

var (
	tokenUser int64
	tokenName string
	tokenRole string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("token"); err != nil {
			return err
		}
		authz, err := initAuthorizer()
		if err != nil {
			return err
		}
		token, err := authz.IssueToken(auth.User{ID: tokenUser, Name: tokenName, Role: tokenRole})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUser, "user", 0, "user id (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role claim")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mint/internal/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token for the analytics export/reset API",
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("operator", "ops", "operator name recorded in audit logs")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured (env: MINT_AUTH_JWT_SECRET)")
	}
	operator, _ := cmd.Flags().GetString("operator")

	token, err := jwt.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry).GenerateToken(operator, jwt.RoleOperator)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

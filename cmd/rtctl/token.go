package main

import (
	"fmt"
	"time"

	"PPRealtime/tools"
	"PPRealtime/tools/security"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <userId>",
	Short: "Issue a session token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		alg, _ := cmd.Flags().GetString("alg")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		scopes, _ := cmd.Flags().GetStringSlice("scope")

		if secret == "" {
			return fmt.Errorf("secret is required (--secret or RT_TOKEN_SECRET)")
		}
		opts := security.Options{Secret: []byte(secret), Alg: alg, TTL: ttl}
		token, _, exp, err := security.Generate(opts, args[0], scopes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", exp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", tools.GetEnv("RT_TOKEN_SECRET", ""), "HMAC secret shared with the gateway")
	tokenCmd.Flags().String("alg", tools.GetEnv("RT_TOKEN_ALG", "HS256"), "Signing algorithm (HS256, HS384, HS512)")
	tokenCmd.Flags().Duration("ttl", tools.GetEnvDuration("RT_TOKEN_TTL", 2*time.Hour), "Token lifetime")
	tokenCmd.Flags().StringSlice("scope", nil, "Scopes to embed in the token")
}

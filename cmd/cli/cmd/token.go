package cmd

import (
	"runplane/internal/auth"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an API token for the daemon",
	Long: `Generate a random API token and its SHA-256 hash.

Give the token to clients (RUNPLANE_TOKEN) and configure the daemon with the hash
(API_TOKEN_HASH). The daemon never stores the plain token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, hash, err := auth.GenerateToken()
		if err != nil {
			return err
		}

		cmd.Printf("Token:          %s\n", token)
		cmd.Printf("API_TOKEN_HASH: %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

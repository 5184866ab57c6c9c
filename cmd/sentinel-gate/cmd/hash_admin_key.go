package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var hashAdminKeyCmd = &cobra.Command{
	Use:   "hash-admin-key [key]",
	Short: "Generate an argon2id hash for the admin.api_key_hash config field",
	Long: `Generate an argon2id hash of an admin API key for use in config.

The output is a self-describing argon2id hash string (it carries its own
salt and parameters) that can be placed directly into admin.api_key_hash.
Clients then authenticate by sending the raw key in X-Admin-Api-Key.

Example:
  sentinel-gate hash-admin-key "my-secret-admin-key"

Security note: the key will appear in shell history. Consider using an
environment variable instead:
  sentinel-gate hash-admin-key "$ADMIN_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash admin key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashAdminKeyCmd)
}

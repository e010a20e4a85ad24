package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/smtpbridge/internal/crypto"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key for tokens at rest",
		Long: `Print a new random 32-byte AES-256 key, base64 encoded, for use as
--encryption-key or SMTPBRIDGE_ENCRYPTION_KEY.

Store the key securely. Tokens sealed under a lost key cannot be recovered and
every account has to register again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.KeyToBase64(key))
			return err
		},
	}
}

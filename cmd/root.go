package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the smtpbridge application
var rootCmd = &cobra.Command{
	Use:   "smtpbridge",
	Short: "SMTP relay that sends mail through the Gmail API",
	Long: `smtpbridge accepts mail from ordinary SMTP clients and delivers it through
the Gmail API using OAuth tokens obtained from a one-time web registration.

Users register at the web page, receive an API key once, and configure their
mail client with their Gmail address as username and the key as password.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

// version will be set by main
var version = "dev"

var envFile string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "smtpbridge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadEnvFile reads --env-file before any command resolves its env fallbacks.
// Variables already set in the environment win.
func loadEnvFile(_ *cobra.Command, _ []string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file before reading configuration")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAccountCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newSendTestCmd())
	rootCmd.AddCommand(newVersionCmd())
}

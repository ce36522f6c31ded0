package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const serverURLEnv = "AI_SPEND_URL"

var (
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spendctl",
	Short: "AI Spend CLI - track spend across AI providers",
	Long: `spendctl talks to the AI spend dashboard server.

This CLI tool allows you to:
- Trigger provider syncs and check sync status
- Add manual spend entries and import them in bulk from CSV or JSON
- Browse the spend ledger and the dashboard summary`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault(serverURLEnv, "http://localhost:3001"), "AI spend server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

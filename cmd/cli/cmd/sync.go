package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var syncDays int

var syncCmd = &cobra.Command{
	Use:   "sync [provider]",
	Short: "Sync usage and costs from a provider",
	Long: `Fetch the last N days of usage and cost data from a provider and merge
it into the ledger. The provider defaults to openai.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the ledger holds per provider",
	RunE:  runSyncStatus,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)

	syncCmd.Flags().IntVarP(&syncDays, "days", "d", 30, "Number of days to sync (1-366)")
}

func runSync(cmd *cobra.Command, args []string) error {
	provider := "openai"
	if len(args) > 0 {
		provider = args[0]
	}

	if syncDays < 1 || syncDays > 366 {
		return fmt.Errorf("days must be between 1 and 366")
	}

	fmt.Fprintf(os.Stderr, "Syncing %s (last %d days)...\n", provider, syncDays)

	var result SyncResponse
	body := map[string]int{"days": syncDays}
	if err := postJSON("/spend/sync/"+url.PathEscape(provider), body, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println(result.Message)
	fmt.Printf("  Usage records:  %d\n", result.UsageRecords)
	fmt.Printf("  Cost records:   %d\n", result.CostRecords)
	fmt.Printf("  Total:          %d\n", result.TotalRecords)
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	var status SyncStatus
	if err := getJSON("/spend/sync/status", nil, &status); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(status)
	}

	configured := "no"
	if status.OpenAIConfigured {
		configured = "yes"
	}
	fmt.Printf("OpenAI configured: %s\n\n", configured)

	if len(status.Providers) == 0 {
		fmt.Println("No spend data recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tRECORDS\tLATEST DATE\tTOTAL SPEND\tLAST UPDATED")
	for _, p := range status.Providers {
		fmt.Fprintf(w, "%s\t%d\t%s\t$%s\t%s\n",
			p.Provider,
			p.TotalRecords,
			p.LatestDate,
			p.TotalSpend.StringFixed(2),
			p.LastUpdated.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

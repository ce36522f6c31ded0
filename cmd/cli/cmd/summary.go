package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	summaryStartDate string
	summaryEndDate   string
	summaryProvider  string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "View the dashboard spend summary",
	Long:  `View total spend, spend by provider and model, and the daily trend.`,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringVar(&summaryStartDate, "start", "", "Start date (YYYY-MM-DD)")
	summaryCmd.Flags().StringVar(&summaryEndDate, "end", "", "End date (YYYY-MM-DD)")
	summaryCmd.Flags().StringVarP(&summaryProvider, "provider", "p", "", "Filter by provider (openai, anthropic)")
}

func runSummary(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if summaryStartDate != "" {
		params.Set("startDate", summaryStartDate)
	}
	if summaryEndDate != "" {
		params.Set("endDate", summaryEndDate)
	}
	if summaryProvider != "" {
		params.Set("provider", summaryProvider)
	}

	var summary Summary
	if err := getJSON("/dashboard/summary", params, &summary); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(summary)
	}

	printSummary(summary)
	return nil
}

func printSummary(summary Summary) {
	fmt.Println("Spend Summary")
	fmt.Println("=============")
	fmt.Println()

	fmt.Printf("Total Spend:   $%s\n", summary.TotalSpend.StringFixed(2))

	if len(summary.SpendByProvider) > 0 {
		fmt.Println("\nBy Provider:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, p := range summary.SpendByProvider {
			fmt.Fprintf(w, "  %s\t$%s\n", p.Provider, p.TotalSpend.StringFixed(2))
		}
		w.Flush()
	}

	if len(summary.SpendByModel) > 0 {
		fmt.Println("\nTop Models:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PROVIDER\tMODEL\tSPEND\tTOKENS\tREQUESTS")
		for _, m := range summary.SpendByModel {
			fmt.Fprintf(w, "  %s\t%s\t$%s\t%d\t%d\n",
				m.Provider,
				truncateString(m.ModelName, 32),
				m.TotalSpend.StringFixed(2),
				m.TotalTokens,
				m.TotalRequests)
		}
		w.Flush()
	}

	if len(summary.DailyTrend) > 0 {
		fmt.Println("\nDaily Trend:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, d := range summary.DailyTrend {
			fmt.Fprintf(w, "  %s\t$%s\n", d.Date, d.DailySpend.StringFixed(2))
		}
		w.Flush()
	}
}

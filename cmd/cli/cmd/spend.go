package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	spendStartDate string
	spendEndDate   string
	spendProvider  string
	spendModel     string
	spendProjectID string
	spendAPIKeyID  string
	spendPage      int
	spendLimit     int
)

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Browse the spend ledger",
}

var spendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger rows",
	RunE:  runSpendList,
}

var spendGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get one ledger row",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpendGet,
}

func init() {
	rootCmd.AddCommand(spendCmd)
	spendCmd.AddCommand(spendListCmd)
	spendCmd.AddCommand(spendGetCmd)

	spendListCmd.Flags().StringVar(&spendStartDate, "start", "", "Start date (YYYY-MM-DD)")
	spendListCmd.Flags().StringVar(&spendEndDate, "end", "", "End date (YYYY-MM-DD)")
	spendListCmd.Flags().StringVarP(&spendProvider, "provider", "p", "", "Filter by provider")
	spendListCmd.Flags().StringVarP(&spendModel, "model", "m", "", "Filter by model name")
	spendListCmd.Flags().StringVar(&spendProjectID, "project", "", "Filter by project ID")
	spendListCmd.Flags().StringVar(&spendAPIKeyID, "api-key", "", "Filter by API key ID")
	spendListCmd.Flags().IntVar(&spendPage, "page", 1, "Page number")
	spendListCmd.Flags().IntVar(&spendLimit, "limit", 50, "Rows per page (max 1000)")
}

func runSpendList(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if spendStartDate != "" {
		params.Set("startDate", spendStartDate)
	}
	if spendEndDate != "" {
		params.Set("endDate", spendEndDate)
	}
	if spendProvider != "" {
		params.Set("provider", spendProvider)
	}
	if spendModel != "" {
		params.Set("model", spendModel)
	}
	if spendProjectID != "" {
		params.Set("projectId", spendProjectID)
	}
	if spendAPIKeyID != "" {
		params.Set("apiKeyId", spendAPIKeyID)
	}
	if spendPage > 1 {
		params.Set("page", strconv.Itoa(spendPage))
	}
	if spendLimit > 0 {
		params.Set("limit", strconv.Itoa(spendLimit))
	}

	var page SpendPage
	if err := getJSON("/spend", params, &page); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(page)
	}

	if len(page.Data) == 0 {
		fmt.Println("No spend records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tPROVIDER\tMODEL\tCOST\tTOKENS\tREQUESTS\tPROJECT")
	for _, r := range page.Data {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t$%s\t%d\t%d\t%s\n",
			r.ID,
			r.Date,
			r.Provider,
			truncateString(r.ModelName, 28),
			r.CostUSD.StringFixed(4),
			r.TotalTokens,
			r.NumRequests,
			optional(r.ProjectID))
	}
	w.Flush()

	fmt.Printf("\nPage %d of %d (%d records)\n",
		page.Pagination.Page, page.Pagination.TotalPages, page.Pagination.Total)
	return nil
}

func runSpendGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return fmt.Errorf("invalid record id: %s", args[0])
	}

	var rec SpendRecord
	if err := getJSON("/spend/"+strconv.FormatInt(id, 10), nil, &rec); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(rec)
	}

	printRecord(rec)
	return nil
}

func printRecord(r SpendRecord) {
	fmt.Printf("Record:        %d\n", r.ID)
	fmt.Printf("Provider:      %s\n", r.Provider)
	fmt.Printf("Model:         %s\n", r.ModelName)
	fmt.Printf("Date:          %s\n", r.Date)
	fmt.Printf("Cost:          $%s\n", r.CostUSD.String())
	fmt.Printf("Input Tokens:  %d\n", r.InputTokens)
	fmt.Printf("Output Tokens: %d\n", r.OutputTokens)
	fmt.Printf("Total Tokens:  %d\n", r.TotalTokens)
	fmt.Printf("Requests:      %d\n", r.NumRequests)
	fmt.Printf("Project:       %s\n", optional(r.ProjectID))
	fmt.Printf("API Key:       %s\n", optional(r.APIKeyID))
	fmt.Printf("User:          %s\n", optional(r.UserID))
}

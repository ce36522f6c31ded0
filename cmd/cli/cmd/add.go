package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	addDate         string
	addModel        string
	addCost         string
	addInputTokens  int64
	addOutputTokens int64
	addRequests     int64
	addProjectID    string
	addAPIKeyID     string
	addUserID       string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a manual Anthropic spend entry",
	Long: `Add one Anthropic spend entry for a day and model. Entries for the same
day, model and scope accumulate.`,
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addDate, "date", "", "Spend date (YYYY-MM-DD, default today)")
	addCmd.Flags().StringVarP(&addModel, "model", "m", "", "Model name (required)")
	addCmd.Flags().StringVarP(&addCost, "cost", "c", "", "Cost in USD (required)")
	addCmd.Flags().Int64Var(&addInputTokens, "input-tokens", 0, "Input tokens")
	addCmd.Flags().Int64Var(&addOutputTokens, "output-tokens", 0, "Output tokens")
	addCmd.Flags().Int64Var(&addRequests, "requests", 0, "Number of requests")
	addCmd.Flags().StringVar(&addProjectID, "project", "", "Project ID")
	addCmd.Flags().StringVar(&addAPIKeyID, "api-key", "", "API key ID")
	addCmd.Flags().StringVar(&addUserID, "user", "", "User ID")
}

func runAdd(cmd *cobra.Command, args []string) error {
	if addModel == "" {
		return fmt.Errorf("--model is required")
	}
	if addCost == "" {
		return fmt.Errorf("--cost is required")
	}
	if addInputTokens < 0 || addOutputTokens < 0 || addRequests < 0 {
		return fmt.Errorf("token and request counts must not be negative")
	}

	date := addDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	entry := map[string]interface{}{
		"date":          date,
		"model_name":    addModel,
		"cost_usd":      addCost,
		"input_tokens":  addInputTokens,
		"output_tokens": addOutputTokens,
		"num_requests":  addRequests,
	}
	if addProjectID != "" {
		entry["project_id"] = addProjectID
	}
	if addAPIKeyID != "" {
		entry["api_key_id"] = addAPIKeyID
	}
	if addUserID != "" {
		entry["user_id"] = addUserID
	}

	var result ManualEntryResponse
	if err := postJSON("/spend/anthropic/manual", entry, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println(result.Message)
	if result.Data != nil {
		fmt.Println()
		printRecord(*result.Data)
	}
	return nil
}

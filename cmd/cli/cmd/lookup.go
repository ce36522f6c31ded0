package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var lookupProvider string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models seen in the ledger",
	RunE:  runModels,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List OpenAI project IDs seen in the ledger",
	RunE:  runProjects,
}

var apiKeysCmd = &cobra.Command{
	Use:   "api-keys",
	Short: "List API key IDs seen in the ledger",
	RunE:  runAPIKeys,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(apiKeysCmd)

	modelsCmd.Flags().StringVarP(&lookupProvider, "provider", "p", "", "Filter by provider")
	apiKeysCmd.Flags().StringVarP(&lookupProvider, "provider", "p", "", "Filter by provider")
}

func providerParams() url.Values {
	params := url.Values{}
	if lookupProvider != "" {
		params.Set("provider", lookupProvider)
	}
	return params
}

func runModels(cmd *cobra.Command, args []string) error {
	var out []ProviderModel
	if err := getJSON("/models", providerParams(), &out); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(out)
	}

	if len(out) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL")
	for _, m := range out {
		fmt.Fprintf(w, "%s\t%s\n", m.Provider, m.ModelName)
	}
	w.Flush()
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	return listStrings("/projects", nil, "projects")
}

func runAPIKeys(cmd *cobra.Command, args []string) error {
	return listStrings("/api-keys", providerParams(), "API keys")
}

func listStrings(path string, params url.Values, noun string) error {
	var out []string
	if err := getJSON(path, params, &out); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(out)
	}

	if len(out) == 0 {
		fmt.Printf("No %s found.\n", noun)
		return nil
	}
	for _, s := range out {
		fmt.Println(s)
	}
	return nil
}

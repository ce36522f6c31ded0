package cmd

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect CLI settings and the target server",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved server URL and the server's health",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// serverHealth mirrors the /health response body
type serverHealth struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func fetchHealth() (*serverHealth, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	// 503 still carries a health body
	var h serverHealth
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &h, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	source := "default"
	if os.Getenv(serverURLEnv) != "" {
		source = serverURLEnv
	}
	if f := cmd.Flag("server"); f != nil && f.Changed {
		source = "--server"
	}

	health, err := fetchHealth()

	if outputFormat == "json" {
		out := map[string]interface{}{
			"server":       serverURL,
			"serverSource": source,
			"output":       outputFormat,
		}
		if err != nil {
			out["error"] = err.Error()
		} else {
			out["health"] = health
		}
		return printJSON(out)
	}

	fmt.Printf("Server URL:  %s (%s)\n", serverURL, source)
	fmt.Printf("Output:      %s\n", outputFormat)
	fmt.Println()

	if err != nil {
		fmt.Printf("Server:      unreachable (%v)\n", err)
		return nil
	}

	fmt.Printf("Server:      %s\n", health.Status)
	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-10s %s\n", name+":", health.Services[name])
	}

	return nil
}

package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var importFormat string

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Bulk import spend entries from CSV or JSON",
	Long: `Bulk import spend entries. CSV files need a header row whose columns are
entry fields: provider, date, model_name, cost_usd, input_tokens,
output_tokens, num_requests, project_id, api_key_id, user_id.
JSON files hold an array of entries or an object with a "records" array.

Invalid records are reported and skipped; the rest are imported.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "Input format (csv, json; default from file extension)")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	format := importFormat
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	var records []json.RawMessage
	switch format {
	case "csv":
		records, err = readCSVRecords(f)
	case "json":
		records, err = readJSONRecords(f)
	default:
		return fmt.Errorf("unsupported import format %q (want csv or json)", format)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no records found in %s", path)
	}

	var result BulkImportResponse
	if err := postJSON("/spend/manual/bulk", map[string]interface{}{"records": records}, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Println(result.Message)
	fmt.Printf("  Imported:  %d\n", result.SuccessCount)
	fmt.Printf("  Failed:    %d\n", result.ErrorCount)
	fmt.Printf("  Total:     %d\n", result.TotalRecords)
	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		if result.ErrorCount > len(result.Errors) {
			fmt.Printf("  ... and %d more\n", result.ErrorCount-len(result.Errors))
		}
	}
	return nil
}

// readCSVRecords turns each CSV row into a JSON object keyed by the header.
// Empty cells are omitted so the server applies its defaults.
func readCSVRecords(r io.Reader) ([]json.RawMessage, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []json.RawMessage
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		obj := make(map[string]string, len(header))
		for i, value := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				obj[header[i]] = value
			}
		}
		if len(obj) == 0 {
			continue
		}

		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to encode CSV row: %w", err)
		}
		records = append(records, raw)
	}

	return records, nil
}

// readJSONRecords accepts a bare array or an object with a "records" array
func readJSONRecords(r io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return wrapped.Records, nil
}

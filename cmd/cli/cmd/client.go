package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/goccy/go-json"
)

// getJSON issues a GET against the API and decodes the response into out
func getJSON(path string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s/api/v1%s", serverURL, path)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	resp, err := http.Get(reqURL)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

// postJSON sends body as JSON and decodes the response into out
func postJSON(path string, body, out interface{}) error {
	reqURL := fmt.Sprintf("%s/api/v1%s", serverURL, path)

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := http.Post(reqURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", serverMessage(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// serverMessage extracts the error text from an API error body
func serverMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return string(body)
	}
	if e.Details != "" {
		return e.Error + ": " + e.Details
	}
	return e.Error
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// optional returns the value or "-" for display
func optional(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

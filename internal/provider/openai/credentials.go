package openai

import (
	"log/slog"
	"os"
	"strings"
)

// placeholderKeys are values shipped in sample env files; they count as unset
var placeholderKeys = map[string]bool{
	"placeholder-openai-key":                    true,
	"placeholder-openai-key-add-real-key-here": true,
}

// LoadAPIKey resolves the API key once at startup. A readable secret file
// (e.g. a Docker secret mounted at OPENAI_API_KEY_FILE) takes precedence over
// the raw value. Returns "" when no usable key exists.
func LoadAPIKey(filePath, raw string) string {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if key := strings.TrimSpace(string(data)); key != "" && !placeholderKeys[key] {
				return key
			}
		} else if !os.IsNotExist(err) {
			slog.Warn("failed to read OpenAI API key file",
				slog.String("path", filePath),
				slog.String("error", err.Error()))
		}
	}

	key := strings.TrimSpace(raw)
	if key == "" || placeholderKeys[key] {
		return ""
	}
	return key
}

package output

import (
	"encoding/json"
	"fmt"

	"github.com/tmichett/Fedora-Remix-Lab/internal/reconcile"
)

// JSONFormatter formats lab status as JSON.
type JSONFormatter struct{}

// FormatStatus formats a lab status report as an indented JSON object.
func (f *JSONFormatter) FormatStatus(status *reconcile.LabStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

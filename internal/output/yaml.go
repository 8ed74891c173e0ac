package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tmichett/Fedora-Remix-Lab/internal/reconcile"
)

// YAMLFormatter formats lab status as YAML.
type YAMLFormatter struct{}

// FormatStatus formats a lab status report as a YAML document.
func (f *YAMLFormatter) FormatStatus(status *reconcile.LabStatus) (string, error) {
	data, err := yaml.Marshal(status)
	if err != nil {
		return "", fmt.Errorf("failed to marshal status to YAML: %w", err)
	}

	return string(data), nil
}

// Package hosts maintains the lab's entries in an /etc/hosts style
// file. All lab entries live inside a marker-delimited block that is
// rewritten as a whole; text outside the block is never touched.
package hosts

import (
	"fmt"
	"os"
	"strings"
)

const (
	beginMarker = "# BEGIN remixlab managed hosts"
	endMarker   = "# END remixlab managed hosts"

	filePermissions = 0644
)

// Entry is one lab host line.
type Entry struct {
	IP   string
	FQDN string
	Name string
}

// Sync replaces the managed block in the file at path with the given
// entries, creating the file if it does not exist. Entry order is
// preserved so repeated syncs of the same lab are byte-identical.
func Sync(path string, entries []Entry) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var block strings.Builder
	block.WriteString(beginMarker + "\n")
	for _, e := range entries {
		fmt.Fprintf(&block, "%s\t%s %s\n", e.IP, e.FQDN, e.Name)
	}
	block.WriteString(endMarker + "\n")

	content := stripBlock(string(existing))
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += block.String()

	if err := os.WriteFile(path, []byte(content), filePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Remove deletes the managed block from the file at path. A missing
// file or missing block is a no-op.
func Remove(path string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := stripBlock(string(existing))
	if content == string(existing) {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), filePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// stripBlock removes the managed block, including its markers. Lines
// outside the block pass through unchanged.
func stripBlock(content string) string {
	if !strings.Contains(content, beginMarker) {
		return content
	}

	var out strings.Builder
	inBlock := false
	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		switch {
		case trimmed == beginMarker:
			inBlock = true
		case trimmed == endMarker:
			inBlock = false
		case !inBlock:
			out.WriteString(line)
		}
	}

	return out.String()
}

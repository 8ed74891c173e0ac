package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/tmichett/Fedora-Remix-Lab/internal/reconcile"
)

// TableFormatter formats lab status as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatStatus formats a lab status report as a table. The network
// line comes first, then one row per VM.
func (f *TableFormatter) FormatStatus(status *reconcile.LabStatus) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Lab: %s\n", status.Lab)
	fmt.Fprintf(&buf, "Network: %s (%s)\n", status.Network.Name, status.Network.State)

	if len(status.VMs) == 0 {
		buf.WriteString("No VMs declared\n")
		return buf.String(), nil
	}

	buf.WriteString("\n")
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tMAC\tRESERVED\tLEASE")
	}

	for _, vm := range status.VMs {
		lease := vm.Lease
		if lease == "" {
			lease = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			vm.Name, vm.State, vm.MAC, vm.Reserved, lease)
	}

	_ = w.Flush()
	return buf.String(), nil
}

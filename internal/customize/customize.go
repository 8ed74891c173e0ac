// Package customize injects lab identity into guest images: hostname,
// timezone, locale, the lab user and the lab host table. Application is
// all-or-nothing; a failed customization leaves the workflow to report
// the VM as failed rather than half-configured.
package customize

import (
	"context"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
)

// HostsEntry is one line of the lab host table injected into guests.
type HostsEntry struct {
	IP   string
	FQDN string
	Name string
}

// Spec is the per-VM customization request.
type Spec struct {
	Hostname     string
	FQDN         string
	Timezone     string
	Locale       string
	User         config.LabUser
	HostsEntries []HostsEntry

	// SeedISOPath is where the cloud-init backend writes its NoCloud
	// seed image. Unused by the virt-customize backend.
	SeedISOPath string
}

// Tool applies a customization spec to a VM's overlay disk.
type Tool interface {
	Apply(ctx context.Context, diskPath string, spec Spec) error
}

// NopTool is the "none" customization method: guests boot the base
// image untouched.
type NopTool struct{}

func (NopTool) Apply(context.Context, string, Spec) error { return nil }

// ForMethod selects the Tool for a configured customization method.
// Unknown methods were rejected at config validation time.
func ForMethod(method string) Tool {
	switch method {
	case config.MethodCloudInit:
		return &SeedISO{}
	case config.MethodNone:
		return NopTool{}
	default:
		return &VirtCustomize{}
	}
}

package customize

import (
	"context"
	"fmt"
	"os/exec"
)

// VirtCustomize applies a spec by running virt-customize against the
// overlay disk. The base image is never touched; all writes land in
// the overlay.
type VirtCustomize struct{}

// NewVirtCustomize returns the virt-customize backed Tool.
func NewVirtCustomize() *VirtCustomize { return &VirtCustomize{} }

// Apply runs a single virt-customize invocation carrying every
// requested change, so a failure leaves no partially customized disk
// in use (the overlay is simply recreated on the next confirmed run).
func (v *VirtCustomize) Apply(ctx context.Context, diskPath string, spec Spec) error {
	cmd := exec.CommandContext(ctx, "virt-customize", virtCustomizeArgs(diskPath, spec)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("virt-customize failed on %s: %w\nOutput: %s", diskPath, err, string(output))
	}

	return nil
}

func virtCustomizeArgs(diskPath string, spec Spec) []string {
	args := []string{"-a", diskPath, "--hostname", spec.FQDN}

	if spec.Timezone != "" {
		args = append(args, "--timezone", spec.Timezone)
	}
	if spec.Locale != "" {
		args = append(args, "--append-line", fmt.Sprintf("/etc/locale.conf:LANG=%s", spec.Locale))
	}

	if spec.User.Name != "" {
		args = append(args, "--run-command", fmt.Sprintf("useradd -m -G wheel %s", spec.User.Name))
		if spec.User.PasswordHash != "" {
			args = append(args, "--run-command",
				fmt.Sprintf("echo '%s:%s' | chpasswd -e", spec.User.Name, spec.User.PasswordHash))
		}
		for _, key := range spec.User.SSHKeys {
			args = append(args, "--ssh-inject", fmt.Sprintf("%s:string:%s", spec.User.Name, key))
		}
	}

	for _, entry := range spec.HostsEntries {
		args = append(args, "--append-line",
			fmt.Sprintf("/etc/hosts:%s %s %s", entry.IP, entry.FQDN, entry.Name))
	}

	return args
}

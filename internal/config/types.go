// Package config defines the lab configuration: the virtual network, the
// shared base image and the set of VMs provisioned on top of it. The raw
// YAML types are normalized and validated once at load time; everything
// downstream works with the derived immutable VMSpec/NetworkSpec values.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	// DefaultStorageBase is where lab artifacts live unless overridden.
	DefaultStorageBase = "/var/lib/libvirt/images"

	// DefaultMACPrefix carries the KVM locally-administered OUI plus a
	// fixed lab identifier; the final octet is assigned per VM.
	DefaultMACPrefix = "52:54:00:1a:b0"

	// DefaultHostStart is the host number of the first VM in the subnet.
	DefaultHostStart = 10

	// DefaultMemoryMB and DefaultVCPUs size VMs that don't override them.
	DefaultMemoryMB = 2048
	DefaultVCPUs    = 2
)

// Customization methods.
const (
	MethodVirtCustomize = "virt-customize"
	MethodCloudInit     = "cloud-init"
	MethodNone          = "none"
)

// Lab is the top-level lab configuration as loaded from lab.yaml.
type Lab struct {
	Name        string     `mapstructure:"name"`
	ManagedRoot string     `mapstructure:"managed_root"`
	BaseImage   BaseImage  `mapstructure:"base_image"`
	Network     Network    `mapstructure:"network"`
	Defaults    VMDefaults `mapstructure:"defaults"`
	Customize   Customize  `mapstructure:"customize"`
	VMs         []VMDecl   `mapstructure:"vms"`
}

// BaseImage identifies the pristine source image and its managed copy.
// Source is never touched after the one-time copy to Path, and Path is
// never written to again once overlays reference it.
type BaseImage struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// Network describes the dedicated lab network.
type Network struct {
	Name      string    `mapstructure:"name"`
	Bridge    string    `mapstructure:"bridge"`
	CIDR      net.IPNet `mapstructure:"cidr"`
	Gateway   net.IP    `mapstructure:"gateway"`
	Domain    string    `mapstructure:"domain"`
	MACPrefix string    `mapstructure:"mac_prefix"`
	HostStart int       `mapstructure:"host_start"`
}

// VMDefaults sizes VMs that don't carry their own values.
type VMDefaults struct {
	MemoryMB int `mapstructure:"memory_mb"`
	VCPUs    int `mapstructure:"vcpus"`
}

// Customize configures guest image customization.
type Customize struct {
	Method   string  `mapstructure:"method"`
	Timezone string  `mapstructure:"timezone"`
	Locale   string  `mapstructure:"locale"`
	User     LabUser `mapstructure:"user"`
}

// LabUser is the account injected into every guest.
type LabUser struct {
	Name         string   `mapstructure:"name"`
	PasswordHash string   `mapstructure:"password_hash"`
	SSHKeys      []string `mapstructure:"ssh_keys"`
}

// VMDecl declares one VM. Order matters: a VM's position in this list
// determines its MAC and IP assignment.
type VMDecl struct {
	Name     string `mapstructure:"name"`
	MemoryMB int    `mapstructure:"memory_mb"`
	VCPUs    int    `mapstructure:"vcpus"`
}

// Normalize fills in defaults for fields the config file omitted.
// Call before Validate.
func (l *Lab) Normalize() {
	if l.ManagedRoot == "" && l.Name != "" {
		l.ManagedRoot = filepath.Join(DefaultStorageBase, strings.ToLower(l.Name))
	}
	if l.BaseImage.Path == "" && l.Name != "" && l.BaseImage.Source != "" {
		// Base image lives beside, not inside, the managed root so a
		// reset never deletes it.
		l.BaseImage.Path = filepath.Join(DefaultStorageBase,
			strings.ToLower(l.Name)+"-base"+filepath.Ext(l.BaseImage.Source))
	}
	if l.Network.Name == "" && l.Name != "" {
		l.Network.Name = strings.ToLower(l.Name)
	}
	if l.Network.Bridge == "" && l.Network.Name != "" {
		bridge := "virbr-" + l.Network.Name
		// Linux interface names are capped at 15 characters.
		if len(bridge) > 15 {
			bridge = bridge[:15]
		}
		l.Network.Bridge = bridge
	}
	if l.Network.Gateway == nil && l.Network.CIDR.IP != nil {
		if base := l.Network.CIDR.IP.To4(); base != nil {
			l.Network.Gateway = net.IPv4(base[0], base[1], base[2], 1)
		}
	}
	if l.Network.MACPrefix == "" {
		l.Network.MACPrefix = DefaultMACPrefix
	}
	if l.Network.HostStart == 0 {
		l.Network.HostStart = DefaultHostStart
	}
	if l.Defaults.MemoryMB == 0 {
		l.Defaults.MemoryMB = DefaultMemoryMB
	}
	if l.Defaults.VCPUs == 0 {
		l.Defaults.VCPUs = DefaultVCPUs
	}
	if l.Customize.Method == "" {
		l.Customize.Method = MethodVirtCustomize
	}

	for i := range l.VMs {
		if l.VMs[i].MemoryMB == 0 {
			l.VMs[i].MemoryMB = l.Defaults.MemoryMB
		}
		if l.VMs[i].VCPUs == 0 {
			l.VMs[i].VCPUs = l.Defaults.VCPUs
		}
	}
}

// namePattern matches libvirt domain name requirements: alphanumeric
// start and end, alphanumeric/hyphen/underscore in between.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]*[a-zA-Z0-9])?$`)

// Validate checks the normalized configuration for errors. It validates
// structure only, not hypervisor state (missing images and networks are
// detected at reconcile time).
func (l *Lab) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(l.Name) {
		return fmt.Errorf("name must start and end with alphanumeric characters and contain only alphanumeric, hyphens, or underscores, got %q", l.Name)
	}
	if l.BaseImage.Source == "" {
		return fmt.Errorf("base_image.source is required")
	}
	if l.ManagedRoot == "" {
		return fmt.Errorf("managed_root is required")
	}
	if l.BaseImage.Path == l.ManagedRoot || strings.HasPrefix(l.BaseImage.Path, l.ManagedRoot+string(filepath.Separator)) {
		return fmt.Errorf("base_image.path %q must lie outside managed_root %q", l.BaseImage.Path, l.ManagedRoot)
	}

	if err := l.Network.validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := l.Customize.validate(); err != nil {
		return fmt.Errorf("customize: %w", err)
	}

	if len(l.VMs) == 0 {
		return fmt.Errorf("at least one vm is required")
	}
	seen := make(map[string]bool, len(l.VMs))
	for i, vm := range l.VMs {
		if vm.Name == "" {
			return fmt.Errorf("vms[%d]: name is required", i)
		}
		if !namePattern.MatchString(vm.Name) {
			return fmt.Errorf("vms[%d]: invalid name %q", i, vm.Name)
		}
		if seen[vm.Name] {
			return fmt.Errorf("vms[%d]: duplicate name %q", i, vm.Name)
		}
		seen[vm.Name] = true
		if vm.MemoryMB <= 0 {
			return fmt.Errorf("vm %s: memory_mb must be > 0, got %d", vm.Name, vm.MemoryMB)
		}
		if vm.VCPUs <= 0 {
			return fmt.Errorf("vm %s: vcpus must be > 0, got %d", vm.Name, vm.VCPUs)
		}
	}

	// Every VM must resolve to an in-subnet address and a unique MAC.
	specs, err := l.VMSpecs()
	if err != nil {
		return err
	}
	macs := make(map[string]string, len(specs))
	ips := make(map[string]string, len(specs))
	for _, spec := range specs {
		if prev, ok := macs[spec.MACAddress]; ok {
			return fmt.Errorf("vm %s: MAC %s already assigned to %s", spec.Name, spec.MACAddress, prev)
		}
		macs[spec.MACAddress] = spec.Name
		ip := spec.IPAddress.String()
		if prev, ok := ips[ip]; ok {
			return fmt.Errorf("vm %s: IP %s already assigned to %s", spec.Name, ip, prev)
		}
		ips[ip] = spec.Name
		if spec.IPAddress.Equal(l.Network.Gateway) {
			return fmt.Errorf("vm %s: address %s collides with the gateway", spec.Name, ip)
		}
	}

	return nil
}

func (n *Network) validate() error {
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	if n.CIDR.IP == nil || n.CIDR.Mask == nil {
		return fmt.Errorf("cidr is required")
	}
	if n.CIDR.IP.To4() == nil {
		return fmt.Errorf("cidr must be IPv4, got %s", n.CIDR.IP)
	}
	if n.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	if !n.CIDR.Contains(n.Gateway) {
		return fmt.Errorf("gateway %s lies outside subnet %s", n.Gateway, n.CIDR.String())
	}
	if gw := n.Gateway.To4(); gw != nil && int(gw[3]) >= n.HostStart {
		return fmt.Errorf("gateway %s falls inside the DHCP host range starting at .%d", n.Gateway, n.HostStart)
	}
	if n.HostStart <= 0 || n.HostStart >= 255 {
		return fmt.Errorf("host_start must be in 1..254, got %d", n.HostStart)
	}
	if len(n.Bridge) > 15 {
		return fmt.Errorf("bridge name %q exceeds 15 characters", n.Bridge)
	}
	return nil
}

func (c *Customize) validate() error {
	switch c.Method {
	case MethodVirtCustomize, MethodCloudInit, MethodNone:
	default:
		return fmt.Errorf("unsupported method %q (supported: %s, %s, %s)",
			c.Method, MethodVirtCustomize, MethodCloudInit, MethodNone)
	}
	for i, key := range c.User.SSHKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return fmt.Errorf("user.ssh_keys[%d]: invalid public key: %w", i, err)
		}
	}
	return nil
}

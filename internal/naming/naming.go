// Package naming provides the deterministic naming and addressing
// conventions for lab resources. The MAC address, IP address, FQDN and
// on-disk artifact names of a VM are all pure functions of the lab
// configuration and the VM's declared position, so destroying and
// recreating a VM always reproduces the same addresses.
package naming

import (
	"fmt"
	"net"
	"strings"
)

const (
	// MACStart is the value of the final MAC octet for the first VM.
	MACStart = 0xaa

	// maxHosts bounds the per-lab VM count so the final MAC octet
	// never wraps (0xaa..0xff).
	maxHosts = 0xff - MACStart + 1
)

// MACForIndex returns the MAC address for the VM at position index.
// The prefix carries the first five octets (e.g. "52:54:00:1a:b0");
// the final octet is MACStart plus the index.
//
// Example: prefix 52:54:00:1a:b0, index 0 → 52:54:00:1a:b0:aa
func MACForIndex(prefix string, index int) (string, error) {
	if index < 0 || index >= maxHosts {
		return "", fmt.Errorf("vm index %d out of range (max %d VMs per lab)", index, maxHosts)
	}

	octets := strings.Split(prefix, ":")
	if len(octets) != 5 {
		return "", fmt.Errorf("mac prefix must have 5 octets, got %q", prefix)
	}
	for _, o := range octets {
		if len(o) != 2 {
			return "", fmt.Errorf("invalid mac prefix octet %q in %q", o, prefix)
		}
	}

	return fmt.Sprintf("%s:%02x", strings.ToLower(prefix), MACStart+index), nil
}

// IPForIndex returns the IP address for the VM at position index.
// Addresses are assigned sequentially starting at hostStart within the
// subnet (e.g. 192.168.100.0/24 with hostStart 10 → .10, .11, ...).
func IPForIndex(subnet net.IPNet, hostStart, index int) (net.IP, error) {
	if index < 0 {
		return nil, fmt.Errorf("vm index must be >= 0, got %d", index)
	}

	base := subnet.IP.To4()
	if base == nil {
		return nil, fmt.Errorf("subnet must be IPv4, got %s", subnet.IP)
	}

	host := hostStart + index
	if host <= 0 || host >= 255 {
		return nil, fmt.Errorf("host number %d out of range for /24-style assignment", host)
	}

	ip := net.IPv4(base[0], base[1], base[2], byte(host))
	if !subnet.Contains(ip) {
		return nil, fmt.Errorf("derived address %s lies outside subnet %s", ip, subnet.String())
	}

	return ip, nil
}

// FQDN joins a VM name with the lab's DNS domain suffix.
// Names are lowercased since DNS is case-insensitive and libvirt's
// dnsmasq records lowercase hostnames in its lease table.
func FQDN(vmName, domain string) string {
	name := strings.ToLower(vmName)
	domain = strings.Trim(domain, ".")
	if domain == "" {
		return name
	}
	return name + "." + domain
}

// OverlayName returns the overlay disk filename for a VM.
// Format: {vmName}.qcow2
func OverlayName(vmName string) string {
	return vmName + ".qcow2"
}

// DescriptorName returns the rendered domain descriptor filename for a VM.
// Format: {vmName}.xml
func DescriptorName(vmName string) string {
	return vmName + ".xml"
}

// NetworkDescriptorName returns the rendered network descriptor filename.
// Format: {networkName}.xml
func NetworkDescriptorName(networkName string) string {
	return networkName + ".xml"
}

// SeedISOName returns the cloud-init seed ISO filename for a VM.
// Format: {vmName}-cidata.iso
func SeedISOName(vmName string) string {
	return vmName + "-cidata.iso"
}

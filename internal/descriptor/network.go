package descriptor

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
)

// RenderNetwork renders the network XML for the lab network: a NAT
// bridge carrying the full static reservation table. The DHCP range
// starts above the gateway, so the gateway address is never handed out;
// each VM gets exactly one host entry binding its MAC to its reserved
// IP and hostname.
func RenderNetwork(spec config.NetworkSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("network name is required")
	}
	if spec.Gateway == nil {
		return "", fmt.Errorf("network %s: gateway is required", spec.Name)
	}
	if len(spec.Reservations) == 0 {
		return "", fmt.Errorf("network %s: at least one reservation is required", spec.Name)
	}

	hosts := make([]libvirtxml.NetworkDHCPHost, 0, len(spec.Reservations))
	for _, r := range spec.Reservations {
		if !spec.CIDR.Contains(r.IP) {
			return "", fmt.Errorf("network %s: reservation %s (%s) lies outside subnet %s",
				spec.Name, r.Name, r.IP, spec.CIDR.String())
		}
		hosts = append(hosts, libvirtxml.NetworkDHCPHost{
			MAC:  r.MAC,
			Name: r.Name,
			IP:   r.IP.String(),
		})
	}

	network := &libvirtxml.Network{
		Name: spec.Name,
		Forward: &libvirtxml.NetworkForward{
			Mode: "nat",
		},
		Bridge: &libvirtxml.NetworkBridge{
			Name:  spec.Bridge,
			STP:   "on",
			Delay: "0",
		},
		IPs: []libvirtxml.NetworkIP{
			{
				Address: spec.Gateway.String(),
				Netmask: spec.Netmask(),
				DHCP: &libvirtxml.NetworkDHCP{
					Ranges: []libvirtxml.NetworkDHCPRange{
						{
							Start: spec.RangeStart.String(),
							End:   spec.RangeEnd.String(),
						},
					},
					Hosts: hosts,
				},
			},
		},
	}

	if spec.Domain != "" {
		network.Domain = &libvirtxml.NetworkDomain{
			Name:      spec.Domain,
			LocalOnly: "yes",
		}
	}

	xml, err := network.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}

	return xml, nil
}

package config

import (
	"fmt"
	"net"
	"path/filepath"

	"github.com/tmichett/Fedora-Remix-Lab/internal/naming"
)

// VMSpec is the fully resolved, immutable description of one VM. It is
// derived from the Lab configuration and passed through the call graph;
// nothing mutates it after load.
type VMSpec struct {
	Name          string
	FQDN          string
	MACAddress    string
	IPAddress     net.IP
	MemoryMB      int
	VCPUs         int
	BaseImagePath string
	OverlayPath   string
	// DescriptorPath is where the rendered domain XML is persisted.
	DescriptorPath string
	// SeedISOPath is non-empty only for cloud-init customization; the
	// renderer attaches it as a read-only cdrom.
	SeedISOPath string
}

// Reservation is one static DHCP host entry in the lab network.
type Reservation struct {
	Name string
	MAC  string
	IP   net.IP
	FQDN string
}

// NetworkSpec is the fully resolved description of the lab network,
// including the complete reservation table. The reservation set is a
// bijection between MAC and IP, enforced by Lab.Validate.
type NetworkSpec struct {
	Name           string
	Bridge         string
	CIDR           net.IPNet
	Gateway        net.IP
	Domain         string
	Reservations   []Reservation
	DescriptorPath string
	// RangeStart/RangeEnd bound the DHCP pool; the gateway sits below
	// RangeStart and is never handed out.
	RangeStart net.IP
	RangeEnd   net.IP
}

// VMSpecs derives the per-VM specs, one per declared VM in declared
// order. The result is deterministic: the same Lab always yields the
// same MAC/IP assignments.
func (l *Lab) VMSpecs() ([]VMSpec, error) {
	specs := make([]VMSpec, 0, len(l.VMs))
	for i, vm := range l.VMs {
		mac, err := naming.MACForIndex(l.Network.MACPrefix, i)
		if err != nil {
			return nil, fmt.Errorf("vm %s: %w", vm.Name, err)
		}
		ip, err := naming.IPForIndex(l.Network.CIDR, l.Network.HostStart, i)
		if err != nil {
			return nil, fmt.Errorf("vm %s: %w", vm.Name, err)
		}

		spec := VMSpec{
			Name:           vm.Name,
			FQDN:           naming.FQDN(vm.Name, l.Network.Domain),
			MACAddress:     mac,
			IPAddress:      ip,
			MemoryMB:       vm.MemoryMB,
			VCPUs:          vm.VCPUs,
			BaseImagePath:  l.BaseImage.Path,
			OverlayPath:    filepath.Join(l.ManagedRoot, naming.OverlayName(vm.Name)),
			DescriptorPath: filepath.Join(l.ManagedRoot, naming.DescriptorName(vm.Name)),
		}
		if l.Customize.Method == MethodCloudInit {
			spec.SeedISOPath = filepath.Join(l.ManagedRoot, naming.SeedISOName(vm.Name))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// NetworkSpec derives the network spec with one reservation per VM.
func (l *Lab) NetworkSpec() (NetworkSpec, error) {
	vms, err := l.VMSpecs()
	if err != nil {
		return NetworkSpec{}, err
	}

	reservations := make([]Reservation, 0, len(vms))
	for _, vm := range vms {
		reservations = append(reservations, Reservation{
			Name: vm.Name,
			MAC:  vm.MACAddress,
			IP:   vm.IPAddress,
			FQDN: vm.FQDN,
		})
	}

	base := l.Network.CIDR.IP.To4()
	rangeStart, err := naming.IPForIndex(l.Network.CIDR, l.Network.HostStart, 0)
	if err != nil {
		return NetworkSpec{}, err
	}

	return NetworkSpec{
		Name:           l.Network.Name,
		Bridge:         l.Network.Bridge,
		CIDR:           l.Network.CIDR,
		Gateway:        l.Network.Gateway,
		Domain:         l.Network.Domain,
		Reservations:   reservations,
		DescriptorPath: filepath.Join(l.ManagedRoot, naming.NetworkDescriptorName(l.Network.Name)),
		RangeStart:     rangeStart,
		RangeEnd:       net.IPv4(base[0], base[1], base[2], 254),
	}, nil
}

// Netmask returns the dotted-quad netmask of the lab subnet, the form
// libvirt network XML expects.
func (n NetworkSpec) Netmask() string {
	m := n.CIDR.Mask
	if len(m) == 16 {
		m = m[12:]
	}
	return net.IPv4(m[0], m[1], m[2], m[3]).String()
}

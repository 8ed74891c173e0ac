package reconcile

import (
	"context"
	"log"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// statusQueryLimit bounds concurrent read-only control-plane queries.
const statusQueryLimit = 4

// VMStatus is the observed state of one VM next to its declared
// addressing.
type VMStatus struct {
	Name     string `json:"name" yaml:"name"`
	State    string `json:"state" yaml:"state"`
	MAC      string `json:"mac" yaml:"mac"`
	Reserved string `json:"reserved_ip" yaml:"reserved_ip"`

	// Lease is the address the DHCP server actually handed out, empty
	// when the VM holds no active lease.
	Lease string `json:"lease_ip,omitempty" yaml:"lease_ip,omitempty"`
}

// NetworkStatus is the observed state of the lab network.
type NetworkStatus struct {
	Name  string `json:"name" yaml:"name"`
	State string `json:"state" yaml:"state"`
}

// LabStatus is the full observed lab state as reported by the status
// workflow.
type LabStatus struct {
	Lab     string        `json:"lab" yaml:"lab"`
	Network NetworkStatus `json:"network" yaml:"network"`
	VMs     []VMStatus    `json:"vms" yaml:"vms"`
}

// Status reports the observed state of the network and every declared
// VM. It is strictly read-only; VM state queries run concurrently since
// nothing mutates. Lease information is best-effort: a lease query
// failure degrades to empty lease columns, not a failed status.
func (r *Reconciler) Status(ctx context.Context) (*LabStatus, error) {
	specs, err := r.lab.VMSpecs()
	if err != nil {
		return nil, err
	}
	netSpec, err := r.lab.NetworkSpec()
	if err != nil {
		return nil, err
	}

	netState, err := r.network.State(netSpec.Name)
	if err != nil {
		return nil, err
	}

	var leases []libvirt.Lease
	if netState == libvirt.NetworkActive {
		leases, err = r.network.Leases(netSpec.Name)
		if err != nil {
			log.Printf("Warning: failed to query DHCP leases for %s: %v", netSpec.Name, err)
		}
	}

	statuses := make([]VMStatus, len(specs))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(statusQueryLimit)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			state, err := r.vms.State(spec.Name)
			if err != nil {
				return err
			}

			status := VMStatus{
				Name:     spec.Name,
				State:    state.String(),
				MAC:      spec.MACAddress,
				Reserved: spec.IPAddress.String(),
			}
			if lease, ok := lo.Find(leases, func(l libvirt.Lease) bool {
				return strings.EqualFold(l.MAC, spec.MACAddress)
			}); ok {
				status.Lease = lease.IP
			}

			statuses[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &LabStatus{
		Lab:     r.lab.Name,
		Network: NetworkStatus{Name: netSpec.Name, State: netState.String()},
		VMs:     statuses,
	}, nil
}

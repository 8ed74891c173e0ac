// Package network owns the lab virtual network: its existence, its
// activity and its static DHCP reservation table. It never touches
// disks or domains.
package network

import (
	"fmt"
	"log"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/confirm"
	"github.com/tmichett/Fedora-Remix-Lab/internal/descriptor"
	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// ControlPlane is the subset of control-plane operations the network
// manager needs. In production it is satisfied by *libvirt.Client.
type ControlPlane interface {
	DefineNetwork(xml string) error
	StartNetwork(name string) error
	SetNetworkAutostart(name string) error
	DestroyNetwork(name string) error
	UndefineNetwork(name string) error
	NetworkState(name string) (libvirt.NetworkRuntimeState, error)
	DHCPLeases(name string) ([]libvirt.Lease, error)
}

// Manager reconciles the lab network toward "defined and active".
type Manager struct {
	cp        ControlPlane
	confirmer confirm.Confirmer
}

// NewManager creates a network manager.
func NewManager(cp ControlPlane, confirmer confirm.Confirmer) *Manager {
	return &Manager{cp: cp, confirmer: confirmer}
}

// EnsureNetwork converges the network toward active. State decides the
// action:
//
//   - not defined: render from the reservation table, define, start,
//     mark autostart
//   - inactive: start only; the existing definition is preserved so
//     manually adjusted config survives
//   - active: no-op, unless recreate is requested and confirmed, in
//     which case the network is torn down and redefined
//
// Define and start failures are fatal; an autostart failure is only a
// warning.
func (m *Manager) EnsureNetwork(spec config.NetworkSpec, recreate bool) error {
	state, err := m.cp.NetworkState(spec.Name)
	if err != nil {
		return fmt.Errorf("failed to query network %s: %w", spec.Name, err)
	}

	switch state {
	case libvirt.NetworkActive:
		if !recreate {
			log.Printf("Network %s already active", spec.Name)
			return nil
		}
		if !m.confirmer.Confirm(fmt.Sprintf("destroy and recreate active network %s", spec.Name)) {
			log.Printf("Warning: network %s recreation declined, keeping existing network", spec.Name)
			return nil
		}
		m.Teardown(spec.Name)

	case libvirt.NetworkInactive:
		log.Printf("Network %s defined but inactive, starting it...", spec.Name)
		if err := m.cp.StartNetwork(spec.Name); err != nil {
			return fmt.Errorf("failed to activate network %s: %w", spec.Name, err)
		}
		return m.verifyActive(spec.Name)

	case libvirt.NetworkNotDefined:
		// fall through to define below
	}

	log.Printf("Defining network %s...", spec.Name)
	xml, err := descriptor.RenderNetwork(spec)
	if err != nil {
		return fmt.Errorf("failed to render network %s: %w", spec.Name, err)
	}
	if err := m.cp.DefineNetwork(xml); err != nil {
		return fmt.Errorf("failed to define network %s: %w", spec.Name, err)
	}
	if err := m.cp.StartNetwork(spec.Name); err != nil {
		return fmt.Errorf("failed to start network %s: %w", spec.Name, err)
	}
	if err := m.cp.SetNetworkAutostart(spec.Name); err != nil {
		log.Printf("Warning: failed to set autostart on network %s: %v", spec.Name, err)
	}

	return m.verifyActive(spec.Name)
}

// Teardown stops and undefines the network, best-effort. Resources that
// are already absent are not errors; reset must converge toward
// "nothing defined" from any partial state.
func (m *Manager) Teardown(name string) {
	state, err := m.cp.NetworkState(name)
	if err != nil {
		log.Printf("Warning: failed to query network %s: %v", name, err)
		return
	}

	if state == libvirt.NetworkNotDefined {
		log.Printf("Network %s already undefined", name)
		return
	}

	if state == libvirt.NetworkActive {
		log.Printf("Destroying network %s...", name)
		if err := m.cp.DestroyNetwork(name); err != nil {
			log.Printf("Warning: failed to destroy network %s: %v", name, err)
		}
	}

	log.Printf("Undefining network %s...", name)
	if err := m.cp.UndefineNetwork(name); err != nil {
		log.Printf("Warning: failed to undefine network %s: %v", name, err)
	}
}

// State reports the current network state.
func (m *Manager) State(name string) (libvirt.NetworkRuntimeState, error) {
	return m.cp.NetworkState(name)
}

// Leases lists current DHCP leases on the network.
func (m *Manager) Leases(name string) ([]libvirt.Lease, error) {
	return m.cp.DHCPLeases(name)
}

// verifyActive re-queries state after a mutation. A mismatch is
// reported, not trusted silently, but does not fail the workflow.
func (m *Manager) verifyActive(name string) error {
	state, err := m.cp.NetworkState(name)
	if err != nil {
		return fmt.Errorf("failed to confirm network %s state: %w", name, err)
	}
	if state != libvirt.NetworkActive {
		log.Printf("Warning: network %s reported %s after start", name, state)
	}
	return nil
}

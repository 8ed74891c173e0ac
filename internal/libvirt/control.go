package libvirt

import (
	"errors"
	"fmt"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"
)

// ErrTimeout marks a control-plane call that exceeded the per-call
// timeout. Callers can distinguish it from ordinary failures with
// errors.Is.
var ErrTimeout = errors.New("control plane call timed out")

// DomainRuntimeState is the observed lifecycle state of a VM domain.
type DomainRuntimeState int

const (
	// DomainUndefined means libvirt has no descriptor for the domain.
	DomainUndefined DomainRuntimeState = iota
	// DomainShutOff means the domain is defined but not running.
	DomainShutOff
	// DomainPaused means the domain is defined and suspended.
	DomainPaused
	// DomainRunning means the domain is defined and running.
	DomainRunning
	// DomainOther covers transient or unexpected libvirt states
	// (blocked, shutting down, crashed, pm-suspended).
	DomainOther
)

func (s DomainRuntimeState) String() string {
	switch s {
	case DomainUndefined:
		return "undefined"
	case DomainShutOff:
		return "shut off"
	case DomainPaused:
		return "paused"
	case DomainRunning:
		return "running"
	default:
		return "other"
	}
}

// NetworkRuntimeState is the observed state of a virtual network.
type NetworkRuntimeState int

const (
	// NetworkNotDefined means libvirt has no descriptor for the network.
	NetworkNotDefined NetworkRuntimeState = iota
	// NetworkInactive means the network is defined but not started.
	NetworkInactive
	// NetworkActive means the network is defined and started.
	NetworkActive
)

func (s NetworkRuntimeState) String() string {
	switch s {
	case NetworkNotDefined:
		return "not defined"
	case NetworkInactive:
		return "inactive"
	case NetworkActive:
		return "active"
	default:
		return "unknown"
	}
}

// Lease is one DHCP lease observed on a virtual network.
type Lease struct {
	MAC      string
	IP       string
	Hostname string
}

// Domain states from the libvirt VIR_DOMAIN_* constants. DomainGetState
// returns the raw int32.
const (
	virDomainRunning = 1
	virDomainPaused  = 3
	virDomainShutoff = 5
)

// rpc is the subset of the generated go-libvirt API the client uses.
// In production it is satisfied by *golibvirt.Libvirt; tests substitute
// a mock.
type rpc interface {
	DomainLookupByName(Name string) (golibvirt.Domain, error)
	DomainDefineXML(XML string) (golibvirt.Domain, error)
	DomainCreate(Dom golibvirt.Domain) error
	DomainResume(Dom golibvirt.Domain) error
	DomainDestroy(Dom golibvirt.Domain) error
	DomainUndefine(Dom golibvirt.Domain) error
	DomainGetState(Dom golibvirt.Domain, Flags uint32) (int32, int32, error)
	DomainSetAutostart(Dom golibvirt.Domain, Autostart int32) error
	NetworkLookupByName(Name string) (golibvirt.Network, error)
	NetworkDefineXML(XML string) (golibvirt.Network, error)
	NetworkCreate(Net golibvirt.Network) error
	NetworkDestroy(Net golibvirt.Network) error
	NetworkUndefine(Net golibvirt.Network) error
	NetworkSetAutostart(Net golibvirt.Network, Autostart int32) error
	NetworkIsActive(Net golibvirt.Network) (int32, error)
	NetworkGetDhcpLeases(Net golibvirt.Network, Mac golibvirt.OptString, NeedResults int32, Flags uint32) ([]golibvirt.NetworkDhcpLease, uint32, error)
}

// call runs one control-plane operation under the per-call timeout.
// The underlying RPC has no cancellation, so on timeout the goroutine
// is abandoned and its eventual result discarded.
func (c *Client) call(op string, fn func() error) error {
	if c.timeout <= 0 {
		return fn()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(c.timeout):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
}

// DefineDomain registers a domain descriptor with libvirt.
func (c *Client) DefineDomain(xml string) error {
	return c.call("define domain", func() error {
		if _, err := c.rpc.DomainDefineXML(xml); err != nil {
			return fmt.Errorf("failed to define domain: %w", err)
		}
		return nil
	})
}

// UndefineDomain removes a domain descriptor.
func (c *Client) UndefineDomain(name string) error {
	return c.call("undefine domain", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			return fmt.Errorf("domain %s not found: %w", name, err)
		}
		if err := c.rpc.DomainUndefine(dom); err != nil {
			return fmt.Errorf("failed to undefine domain %s: %w", name, err)
		}
		return nil
	})
}

// StartDomain cold-starts a defined domain.
func (c *Client) StartDomain(name string) error {
	return c.call("start domain", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			return fmt.Errorf("domain %s not found: %w", name, err)
		}
		if err := c.rpc.DomainCreate(dom); err != nil {
			return fmt.Errorf("failed to start domain %s: %w", name, err)
		}
		return nil
	})
}

// ResumeDomain resumes a paused domain.
func (c *Client) ResumeDomain(name string) error {
	return c.call("resume domain", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			return fmt.Errorf("domain %s not found: %w", name, err)
		}
		if err := c.rpc.DomainResume(dom); err != nil {
			return fmt.Errorf("failed to resume domain %s: %w", name, err)
		}
		return nil
	})
}

// DestroyDomain force-stops a domain's runtime. The descriptor
// persists; the domain drops back to shut off.
func (c *Client) DestroyDomain(name string) error {
	return c.call("destroy domain", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			return fmt.Errorf("domain %s not found: %w", name, err)
		}
		if err := c.rpc.DomainDestroy(dom); err != nil {
			return fmt.Errorf("failed to destroy domain %s: %w", name, err)
		}
		return nil
	})
}

// SetDomainAutostart marks a domain to start with the host.
func (c *Client) SetDomainAutostart(name string) error {
	return c.call("set domain autostart", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			return fmt.Errorf("domain %s not found: %w", name, err)
		}
		if err := c.rpc.DomainSetAutostart(dom, 1); err != nil {
			return fmt.Errorf("failed to set autostart on domain %s: %w", name, err)
		}
		return nil
	})
}

// DomainState queries the current runtime state of a domain. A failed
// lookup reports DomainUndefined: libvirt signals "no such domain"
// through the lookup error.
func (c *Client) DomainState(name string) (DomainRuntimeState, error) {
	state := DomainUndefined
	err := c.call("query domain state", func() error {
		dom, err := c.rpc.DomainLookupByName(name)
		if err != nil {
			state = DomainUndefined
			return nil
		}
		raw, _, err := c.rpc.DomainGetState(dom, 0)
		if err != nil {
			return fmt.Errorf("failed to get state of domain %s: %w", name, err)
		}
		switch raw {
		case virDomainRunning:
			state = DomainRunning
		case virDomainPaused:
			state = DomainPaused
		case virDomainShutoff:
			state = DomainShutOff
		default:
			state = DomainOther
		}
		return nil
	})
	return state, err
}

// DefineNetwork registers a network descriptor with libvirt.
func (c *Client) DefineNetwork(xml string) error {
	return c.call("define network", func() error {
		if _, err := c.rpc.NetworkDefineXML(xml); err != nil {
			return fmt.Errorf("failed to define network: %w", err)
		}
		return nil
	})
}

// StartNetwork starts a defined network.
func (c *Client) StartNetwork(name string) error {
	return c.call("start network", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			return fmt.Errorf("network %s not found: %w", name, err)
		}
		if err := c.rpc.NetworkCreate(net); err != nil {
			return fmt.Errorf("failed to start network %s: %w", name, err)
		}
		return nil
	})
}

// DestroyNetwork stops a running network. The descriptor persists.
func (c *Client) DestroyNetwork(name string) error {
	return c.call("destroy network", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			return fmt.Errorf("network %s not found: %w", name, err)
		}
		if err := c.rpc.NetworkDestroy(net); err != nil {
			return fmt.Errorf("failed to destroy network %s: %w", name, err)
		}
		return nil
	})
}

// UndefineNetwork removes a network descriptor.
func (c *Client) UndefineNetwork(name string) error {
	return c.call("undefine network", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			return fmt.Errorf("network %s not found: %w", name, err)
		}
		if err := c.rpc.NetworkUndefine(net); err != nil {
			return fmt.Errorf("failed to undefine network %s: %w", name, err)
		}
		return nil
	})
}

// SetNetworkAutostart marks a network to start with the host.
func (c *Client) SetNetworkAutostart(name string) error {
	return c.call("set network autostart", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			return fmt.Errorf("network %s not found: %w", name, err)
		}
		if err := c.rpc.NetworkSetAutostart(net, 1); err != nil {
			return fmt.Errorf("failed to set autostart on network %s: %w", name, err)
		}
		return nil
	})
}

// NetworkState queries the current state of a network. A failed lookup
// reports NetworkNotDefined.
func (c *Client) NetworkState(name string) (NetworkRuntimeState, error) {
	state := NetworkNotDefined
	err := c.call("query network state", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			state = NetworkNotDefined
			return nil
		}
		active, err := c.rpc.NetworkIsActive(net)
		if err != nil {
			return fmt.Errorf("failed to query network %s: %w", name, err)
		}
		if active == 1 {
			state = NetworkActive
		} else {
			state = NetworkInactive
		}
		return nil
	})
	return state, err
}

// DHCPLeases lists the current DHCP leases on a network.
func (c *Client) DHCPLeases(name string) ([]Lease, error) {
	var leases []Lease
	err := c.call("query dhcp leases", func() error {
		net, err := c.rpc.NetworkLookupByName(name)
		if err != nil {
			return fmt.Errorf("network %s not found: %w", name, err)
		}
		raw, _, err := c.rpc.NetworkGetDhcpLeases(net, nil, 1, 0)
		if err != nil {
			return fmt.Errorf("failed to list leases on network %s: %w", name, err)
		}
		leases = make([]Lease, 0, len(raw))
		for _, l := range raw {
			lease := Lease{IP: l.Ipaddr}
			if len(l.Mac) > 0 {
				lease.MAC = l.Mac[0]
			}
			if len(l.Hostname) > 0 {
				lease.Hostname = l.Hostname[0]
			}
			leases = append(leases, lease)
		}
		return nil
	})
	return leases, err
}

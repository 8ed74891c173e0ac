// Package vm owns per-VM lifecycle transitions against the control
// plane: registering the domain descriptor, starting, stopping and
// undefining. It never touches disks or the network.
package vm

import (
	"fmt"
	"log"
	"os"

	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// ControlPlane is the subset of control-plane operations the lifecycle
// controller needs. In production it is satisfied by *libvirt.Client.
type ControlPlane interface {
	DefineDomain(xml string) error
	UndefineDomain(name string) error
	StartDomain(name string) error
	ResumeDomain(name string) error
	DestroyDomain(name string) error
	DomainState(name string) (libvirt.DomainRuntimeState, error)
}

// Controller drives a VM through its lifecycle state machine:
//
//	Undefined --register--> ShutOff --start--> Running
//	Paused --resume--> Running
//	Running --stop--> ShutOff (descriptor persists)
//	any defined state --undefine--> Undefined
type Controller struct {
	cp ControlPlane
}

// NewController creates a lifecycle controller.
func NewController(cp ControlPlane) *Controller {
	return &Controller{cp: cp}
}

// Register defines the domain from its pre-rendered descriptor file.
// An already defined domain is a no-op; a missing descriptor file is
// fatal.
func (c *Controller) Register(name, descriptorPath string) error {
	state, err := c.cp.DomainState(name)
	if err != nil {
		return fmt.Errorf("failed to query VM %s: %w", name, err)
	}
	if state != libvirt.DomainUndefined {
		log.Printf("VM %s already defined (%s)", name, state)
		return nil
	}

	xml, err := os.ReadFile(descriptorPath)
	if err != nil {
		return fmt.Errorf("domain descriptor %s not found: %w", descriptorPath, err)
	}

	log.Printf("Registering VM %s...", name)
	if err := c.cp.DefineDomain(string(xml)); err != nil {
		return fmt.Errorf("failed to register VM %s: %w", name, err)
	}

	// Confirm convergence rather than trusting the define call.
	state, err = c.cp.DomainState(name)
	if err != nil {
		return fmt.Errorf("failed to confirm VM %s registration: %w", name, err)
	}
	if state == libvirt.DomainUndefined {
		log.Printf("Warning: VM %s still undefined after register", name)
	}

	return nil
}

// Start converges a defined VM toward running: a shut off VM gets a
// cold start, a paused VM a resume, a running VM nothing at all. An
// undefined VM is fatal (register first); any other state is a warning
// and the run continues.
func (c *Controller) Start(name string) error {
	state, err := c.cp.DomainState(name)
	if err != nil {
		return fmt.Errorf("failed to query VM %s: %w", name, err)
	}

	switch state {
	case libvirt.DomainRunning:
		log.Printf("VM %s already running", name)
		return nil

	case libvirt.DomainShutOff:
		log.Printf("Starting VM %s...", name)
		if err := c.cp.StartDomain(name); err != nil {
			return fmt.Errorf("failed to start VM %s: %w", name, err)
		}

	case libvirt.DomainPaused:
		log.Printf("Resuming VM %s...", name)
		if err := c.cp.ResumeDomain(name); err != nil {
			return fmt.Errorf("failed to resume VM %s: %w", name, err)
		}

	case libvirt.DomainUndefined:
		return fmt.Errorf("VM %s is not defined", name)

	default:
		log.Printf("Warning: VM %s in unexpected state %s, leaving it alone", name, state)
		return nil
	}

	// Confirm convergence after the transition.
	state, err = c.cp.DomainState(name)
	if err != nil {
		return fmt.Errorf("failed to confirm VM %s state: %w", name, err)
	}
	if state != libvirt.DomainRunning {
		log.Printf("Warning: VM %s reported %s after start", name, state)
	}

	return nil
}

// Stop force-stops the VM's runtime, best-effort. The descriptor
// persists; an already stopped or absent VM is not an error.
func (c *Controller) Stop(name string) {
	state, err := c.cp.DomainState(name)
	if err != nil {
		log.Printf("Warning: failed to query VM %s: %v", name, err)
		return
	}

	switch state {
	case libvirt.DomainRunning, libvirt.DomainPaused, libvirt.DomainOther:
		log.Printf("Stopping VM %s...", name)
		if err := c.cp.DestroyDomain(name); err != nil {
			log.Printf("Warning: failed to stop VM %s: %v", name, err)
		}
	default:
		log.Printf("VM %s already stopped", name)
	}
}

// Undefine removes the VM's descriptor, best-effort. An already absent
// VM is not an error.
func (c *Controller) Undefine(name string) {
	state, err := c.cp.DomainState(name)
	if err != nil {
		log.Printf("Warning: failed to query VM %s: %v", name, err)
		return
	}

	if state == libvirt.DomainUndefined {
		log.Printf("VM %s already undefined", name)
		return
	}

	log.Printf("Undefining VM %s...", name)
	if err := c.cp.UndefineDomain(name); err != nil {
		log.Printf("Warning: failed to undefine VM %s: %v", name, err)
	}
}

// State reports the current runtime state of a VM.
func (c *Controller) State(name string) (libvirt.DomainRuntimeState, error) {
	return c.cp.DomainState(name)
}

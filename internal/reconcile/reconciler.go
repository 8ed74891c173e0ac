// Package reconcile composes the image, network and VM managers into
// the lab workflows: create, start, reset and status. It owns the
// ordering (image → network → VM define → VM start) and the
// confirmation gating for destructive actions; each manager owns the
// mutation of exactly its own resource kind.
//
// Workflows are idempotently re-runnable: there is no rollback, and a
// run interrupted mid-sequence is simply re-invoked and converges from
// whatever partial state was reached.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/confirm"
	"github.com/tmichett/Fedora-Remix-Lab/internal/customize"
	"github.com/tmichett/Fedora-Remix-Lab/internal/descriptor"
	"github.com/tmichett/Fedora-Remix-Lab/internal/hosts"
	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// imageManager, networkManager and vmController are the manager
// operations the reconciler composes. In production they are satisfied
// by *image.Manager, *network.Manager and *vm.Controller; tests
// substitute fakes.
type imageManager interface {
	EnsureRoot() error
	EnsureBaseImage(src, dest string) error
	CreateOverlay(ctx context.Context, vm config.VMSpec) (bool, error)
	WriteArtifact(path string, data []byte) error
	RemoveManagedRoot() error
}

type networkManager interface {
	EnsureNetwork(spec config.NetworkSpec, recreate bool) error
	Teardown(name string)
	State(name string) (libvirt.NetworkRuntimeState, error)
	Leases(name string) ([]libvirt.Lease, error)
}

type vmController interface {
	Register(name, descriptorPath string) error
	Start(name string) error
	Stop(name string)
	Undefine(name string)
	State(name string) (libvirt.DomainRuntimeState, error)
}

// Reconciler drives the lab toward its declared state. VMs are always
// processed one at a time in declared order; there is no parallel
// mutation of the shared network or base image.
type Reconciler struct {
	lab       *config.Lab
	images    imageManager
	network   networkManager
	vms       vmController
	custom    customize.Tool
	confirmer confirm.Confirmer

	// hostsFile, when non-empty, receives the lab host table.
	hostsFile string
}

// Option adjusts reconciler construction.
type Option func(*Reconciler)

// WithHostsFile enables host-table sync into the given file.
func WithHostsFile(path string) Option {
	return func(r *Reconciler) { r.hostsFile = path }
}

// New creates a reconciler over the given managers.
func New(lab *config.Lab, images imageManager, net networkManager, vms vmController,
	custom customize.Tool, confirmer confirm.Confirmer, opts ...Option) *Reconciler {
	r := &Reconciler{
		lab:       lab,
		images:    images,
		network:   net,
		vms:       vms,
		custom:    custom,
		confirmer: confirmer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create provisions the whole lab: base image, per-VM overlays with
// customization, the network, and the VM definitions. It is safe to
// re-run; converged resources are left untouched.
func (r *Reconciler) Create(ctx context.Context) error {
	specs, err := r.lab.VMSpecs()
	if err != nil {
		return err
	}
	netSpec, err := r.lab.NetworkSpec()
	if err != nil {
		return err
	}

	log.Printf("Preparing managed storage at %s...", r.lab.ManagedRoot)
	if err := r.images.EnsureRoot(); err != nil {
		return err
	}

	log.Printf("Ensuring base image...")
	if err := r.images.EnsureBaseImage(r.lab.BaseImage.Source, r.lab.BaseImage.Path); err != nil {
		return err
	}

	hostsEntries := hostsTable(netSpec)

	// Overlays and customization first; network readiness is only a
	// precondition for starting VMs, not for defining them.
	for _, spec := range specs {
		created, err := r.images.CreateOverlay(ctx, spec)
		if err != nil {
			return err
		}

		if created {
			log.Printf("Customizing %s...", spec.Name)
			if err := r.custom.Apply(ctx, spec.OverlayPath, r.customizeSpec(spec, hostsEntries)); err != nil {
				return err
			}
		}

		if err := r.ensureDomainDescriptor(spec, netSpec.Name, created); err != nil {
			return err
		}
	}

	netXML, err := descriptor.RenderNetwork(netSpec)
	if err != nil {
		return err
	}
	if err := r.images.WriteArtifact(netSpec.DescriptorPath, []byte(netXML)); err != nil {
		return err
	}

	if err := r.network.EnsureNetwork(netSpec, false); err != nil {
		return err
	}

	for _, spec := range specs {
		if err := r.vms.Register(spec.Name, spec.DescriptorPath); err != nil {
			return err
		}
	}

	if r.hostsFile != "" {
		log.Printf("Syncing host table in %s...", r.hostsFile)
		if err := hosts.Sync(r.hostsFile, toHostsEntries(hostsEntries)); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	log.Printf("Lab %s created", r.lab.Name)
	return nil
}

// Start brings every VM to running. The network must already exist: an
// inactive network is started, a missing one is fatal. Fully converged
// labs re-run with zero side effects.
func (r *Reconciler) Start(ctx context.Context) error {
	specs, err := r.lab.VMSpecs()
	if err != nil {
		return err
	}
	netSpec, err := r.lab.NetworkSpec()
	if err != nil {
		return err
	}

	state, err := r.network.State(netSpec.Name)
	if err != nil {
		return err
	}
	switch state {
	case libvirt.NetworkNotDefined:
		return fmt.Errorf("network %s is not defined; run create first", netSpec.Name)
	case libvirt.NetworkInactive:
		if err := r.network.EnsureNetwork(netSpec, false); err != nil {
			return err
		}
	}

	for _, spec := range specs {
		if err := r.vms.Register(spec.Name, spec.DescriptorPath); err != nil {
			return err
		}
		if err := r.vms.Start(spec.Name); err != nil {
			return err
		}
	}

	log.Printf("Lab %s started", r.lab.Name)
	return nil
}

// ResetScope selects how much of the lab a reset tears down.
type ResetScope string

const (
	// ScopeFull tears down VMs, overlays and the network.
	ScopeFull ResetScope = "full"
	// ScopeVMs tears down VMs and overlays but leaves the network
	// exactly as it is.
	ScopeVMs ResetScope = "vms-only"
)

// ResetOptions configures a reset.
type ResetOptions struct {
	Scope ResetScope
}

// Reset tears the lab down toward "nothing defined". Every step is
// best-effort and independent: resources that are already absent are
// logged and skipped, never fatal, so reset converges from any partial
// state. The entire reset is gated on confirmation; declining aborts
// it without touching anything.
func (r *Reconciler) Reset(ctx context.Context, opts ResetOptions) error {
	if opts.Scope == "" {
		opts.Scope = ScopeFull
	}

	specs, err := r.lab.VMSpecs()
	if err != nil {
		return err
	}
	netSpec, err := r.lab.NetworkSpec()
	if err != nil {
		return err
	}

	if !r.confirmer.Confirm(fmt.Sprintf("reset lab %s (%s)", r.lab.Name, opts.Scope)) {
		log.Printf("Reset of lab %s declined", r.lab.Name)
		return nil
	}

	for _, spec := range specs {
		r.vms.Stop(spec.Name)
	}
	for _, spec := range specs {
		r.vms.Undefine(spec.Name)
	}

	if opts.Scope == ScopeFull {
		r.network.Teardown(netSpec.Name)
	}

	log.Printf("Removing managed storage at %s...", r.lab.ManagedRoot)
	if err := r.images.RemoveManagedRoot(); err != nil {
		log.Printf("Warning: %v", err)
	}

	if r.hostsFile != "" {
		if err := hosts.Remove(r.hostsFile); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	log.Printf("Lab %s reset (%s)", r.lab.Name, opts.Scope)
	return nil
}

// ensureDomainDescriptor renders and persists the domain XML when it is
// missing or the overlay was just recreated. An unchanged VM keeps its
// existing descriptor, UUID included.
func (r *Reconciler) ensureDomainDescriptor(spec config.VMSpec, networkName string, force bool) error {
	if !force {
		if _, err := os.Stat(spec.DescriptorPath); err == nil {
			return nil
		}
	}

	xml, err := descriptor.RenderDomain(spec, networkName)
	if err != nil {
		return err
	}
	return r.images.WriteArtifact(spec.DescriptorPath, []byte(xml))
}

func (r *Reconciler) customizeSpec(spec config.VMSpec, entries []customize.HostsEntry) customize.Spec {
	return customize.Spec{
		Hostname:     strings.ToLower(spec.Name),
		FQDN:         spec.FQDN,
		Timezone:     r.lab.Customize.Timezone,
		Locale:       r.lab.Customize.Locale,
		User:         r.lab.Customize.User,
		HostsEntries: entries,
		SeedISOPath:  spec.SeedISOPath,
	}
}

func hostsTable(netSpec config.NetworkSpec) []customize.HostsEntry {
	entries := make([]customize.HostsEntry, 0, len(netSpec.Reservations))
	for _, res := range netSpec.Reservations {
		entries = append(entries, customize.HostsEntry{
			IP:   res.IP.String(),
			FQDN: res.FQDN,
			Name: strings.ToLower(res.Name),
		})
	}
	return entries
}

func toHostsEntries(entries []customize.HostsEntry) []hosts.Entry {
	out := make([]hosts.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, hosts.Entry{IP: e.IP, FQDN: e.FQDN, Name: e.Name})
	}
	return out
}

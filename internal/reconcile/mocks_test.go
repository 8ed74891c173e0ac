package reconcile

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/customize"
	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// eventLog records manager calls across all fakes in invocation order,
// so tests can assert the workflow sequencing, not just call counts.
type eventLog struct {
	events []string
}

func (l *eventLog) record(event string) {
	l.events = append(l.events, event)
}

// fakeImages is a fake imageManager.
type fakeImages struct {
	log *eventLog

	// overlayExists makes CreateOverlay report "kept existing".
	overlayExists bool
	overlayErr    error
}

func (f *fakeImages) EnsureRoot() error {
	f.log.record("ensure-root")
	return nil
}

func (f *fakeImages) EnsureBaseImage(src, dest string) error {
	f.log.record("base-image")
	return nil
}

func (f *fakeImages) CreateOverlay(_ context.Context, vm config.VMSpec) (bool, error) {
	f.log.record("overlay:" + vm.Name)
	if f.overlayErr != nil {
		return false, f.overlayErr
	}
	return !f.overlayExists, nil
}

func (f *fakeImages) WriteArtifact(path string, data []byte) error {
	f.log.record("write:" + filepath.Base(path))
	return nil
}

func (f *fakeImages) RemoveManagedRoot() error {
	f.log.record("remove-root")
	return nil
}

// fakeNetwork is a fake networkManager.
type fakeNetwork struct {
	log *eventLog

	state     libvirt.NetworkRuntimeState
	stateErr  error
	leases    []libvirt.Lease
	leasesErr error
	ensureErr error
}

func (f *fakeNetwork) EnsureNetwork(spec config.NetworkSpec, recreate bool) error {
	f.log.record("ensure-network")
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.state = libvirt.NetworkActive
	return nil
}

func (f *fakeNetwork) Teardown(name string) {
	f.log.record("teardown-network")
	f.state = libvirt.NetworkNotDefined
}

func (f *fakeNetwork) State(name string) (libvirt.NetworkRuntimeState, error) {
	return f.state, f.stateErr
}

func (f *fakeNetwork) Leases(name string) ([]libvirt.Lease, error) {
	if f.leasesErr != nil {
		return nil, f.leasesErr
	}
	return f.leases, nil
}

// fakeVMs is a fake vmController.
type fakeVMs struct {
	log *eventLog

	states   map[string]libvirt.DomainRuntimeState
	startErr error
}

func (f *fakeVMs) Register(name, descriptorPath string) error {
	f.log.record("register:" + name)
	return nil
}

func (f *fakeVMs) Start(name string) error {
	f.log.record("start:" + name)
	return f.startErr
}

func (f *fakeVMs) Stop(name string) {
	f.log.record("stop:" + name)
}

func (f *fakeVMs) Undefine(name string) {
	f.log.record("undefine:" + name)
}

func (f *fakeVMs) State(name string) (libvirt.DomainRuntimeState, error) {
	if state, ok := f.states[name]; ok {
		return state, nil
	}
	return libvirt.DomainUndefined, nil
}

// fakeCustomizer is a fake customize.Tool that records the specs it was
// asked to apply.
type fakeCustomizer struct {
	log   *eventLog
	specs []customize.Spec
	err   error
}

func (f *fakeCustomizer) Apply(_ context.Context, diskPath string, spec customize.Spec) error {
	f.log.record("customize:" + spec.Hostname)
	f.specs = append(f.specs, spec)
	return f.err
}

var errBoom = errors.New("boom")

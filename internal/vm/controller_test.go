package vm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
)

// mockControlPlane is a mock implementation of the ControlPlane
// interface for testing.
type mockControlPlane struct {
	// Configurable behavior
	stateFunc func(name string) (libvirt.DomainRuntimeState, error)
	defineErr error
	startErr  error
	resumeErr error

	// Call tracking
	defineCalls   []string
	startCalls    []string
	resumeCalls   []string
	destroyCalls  []string
	undefineCalls []string
}

func newMockControlPlane(state libvirt.DomainRuntimeState) *mockControlPlane {
	m := &mockControlPlane{}
	m.stateFunc = func(name string) (libvirt.DomainRuntimeState, error) {
		// Once defined or started, the domain converges.
		if len(m.startCalls) > 0 || len(m.resumeCalls) > 0 {
			return libvirt.DomainRunning, nil
		}
		if len(m.defineCalls) > 0 && state == libvirt.DomainUndefined {
			return libvirt.DomainShutOff, nil
		}
		return state, nil
	}
	return m
}

func (m *mockControlPlane) DefineDomain(xml string) error {
	m.defineCalls = append(m.defineCalls, xml)
	return m.defineErr
}

func (m *mockControlPlane) UndefineDomain(name string) error {
	m.undefineCalls = append(m.undefineCalls, name)
	return nil
}

func (m *mockControlPlane) StartDomain(name string) error {
	m.startCalls = append(m.startCalls, name)
	return m.startErr
}

func (m *mockControlPlane) ResumeDomain(name string) error {
	m.resumeCalls = append(m.resumeCalls, name)
	return m.resumeErr
}

func (m *mockControlPlane) DestroyDomain(name string) error {
	m.destroyCalls = append(m.destroyCalls, name)
	return nil
}

func (m *mockControlPlane) DomainState(name string) (libvirt.DomainRuntimeState, error) {
	return m.stateFunc(name)
}

func writeDescriptor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "FedoraLab1.xml")
	require.NoError(t, os.WriteFile(path, []byte("<domain><name>FedoraLab1</name></domain>"), 0644))
	return path
}

func TestRegister(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainUndefined)
	c := NewController(cp)
	path := writeDescriptor(t)

	require.NoError(t, c.Register("FedoraLab1", path))

	require.Len(t, cp.defineCalls, 1)
	assert.Contains(t, cp.defineCalls[0], "FedoraLab1")
}

func TestRegister_AlreadyDefinedIsNoOp(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainShutOff)
	c := NewController(cp)

	// The descriptor file is not even read when the domain exists.
	require.NoError(t, c.Register("FedoraLab1", filepath.Join(t.TempDir(), "nope.xml")))
	assert.Empty(t, cp.defineCalls)
}

func TestRegister_MissingDescriptorIsFatal(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainUndefined)
	c := NewController(cp)

	err := c.Register("FedoraLab1", filepath.Join(t.TempDir(), "nope.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "descriptor")
	assert.Empty(t, cp.defineCalls)
}

func TestStart(t *testing.T) {
	tests := []struct {
		name        string
		state       libvirt.DomainRuntimeState
		wantErr     bool
		wantStarts  int
		wantResumes int
	}{
		{name: "shut off gets cold start", state: libvirt.DomainShutOff, wantStarts: 1},
		{name: "paused gets resume", state: libvirt.DomainPaused, wantResumes: 1},
		{name: "running is a no-op", state: libvirt.DomainRunning},
		{name: "undefined is fatal", state: libvirt.DomainUndefined, wantErr: true},
		{name: "transient state left alone", state: libvirt.DomainOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := newMockControlPlane(tt.state)
			c := NewController(cp)

			err := c.Start("FedoraLab1")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			assert.Len(t, cp.startCalls, tt.wantStarts)
			assert.Len(t, cp.resumeCalls, tt.wantResumes)
		})
	}
}

func TestStart_StartFailureIsFatal(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainShutOff)
	cp.startErr = errors.New("no bootable device")
	c := NewController(cp)

	assert.Error(t, c.Start("FedoraLab1"))
}

func TestStop(t *testing.T) {
	tests := []struct {
		name         string
		state        libvirt.DomainRuntimeState
		wantDestroys int
	}{
		{name: "running is destroyed", state: libvirt.DomainRunning, wantDestroys: 1},
		{name: "paused is destroyed", state: libvirt.DomainPaused, wantDestroys: 1},
		{name: "shut off is left alone", state: libvirt.DomainShutOff},
		{name: "undefined is left alone", state: libvirt.DomainUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := newMockControlPlane(tt.state)
			c := NewController(cp)

			c.Stop("FedoraLab1")
			assert.Len(t, cp.destroyCalls, tt.wantDestroys)
		})
	}
}

func TestUndefine(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainShutOff)
	c := NewController(cp)

	c.Undefine("FedoraLab1")
	assert.Equal(t, []string{"FedoraLab1"}, cp.undefineCalls)
}

func TestUndefine_AlreadyAbsentIsNoOp(t *testing.T) {
	cp := newMockControlPlane(libvirt.DomainUndefined)
	c := NewController(cp)

	c.Undefine("FedoraLab1")
	assert.Empty(t, cp.undefineCalls)
}

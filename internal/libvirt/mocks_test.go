package libvirt

import (
	"fmt"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"
)

// mockRPC is a mock implementation of the rpc interface for testing.
type mockRPC struct {
	mu sync.Mutex

	// Configurable behavior
	domainLookupByNameFunc   func(name string) (golibvirt.Domain, error)
	domainDefineXMLFunc      func(xml string) (golibvirt.Domain, error)
	domainCreateFunc         func(dom golibvirt.Domain) error
	domainResumeFunc         func(dom golibvirt.Domain) error
	domainDestroyFunc        func(dom golibvirt.Domain) error
	domainUndefineFunc       func(dom golibvirt.Domain) error
	domainGetStateFunc       func(dom golibvirt.Domain, flags uint32) (int32, int32, error)
	domainSetAutostartFunc   func(dom golibvirt.Domain, autostart int32) error
	networkLookupByNameFunc  func(name string) (golibvirt.Network, error)
	networkDefineXMLFunc     func(xml string) (golibvirt.Network, error)
	networkCreateFunc        func(net golibvirt.Network) error
	networkDestroyFunc       func(net golibvirt.Network) error
	networkUndefineFunc      func(net golibvirt.Network) error
	networkSetAutostartFunc  func(net golibvirt.Network, autostart int32) error
	networkIsActiveFunc      func(net golibvirt.Network) (int32, error)
	networkGetDhcpLeasesFunc func(net golibvirt.Network, mac golibvirt.OptString, needResults int32, flags uint32) ([]golibvirt.NetworkDhcpLease, uint32, error)

	// Call tracking
	domainDefineXMLCalls  []string
	domainCreateCalls     []string
	domainResumeCalls     []string
	domainDestroyCalls    []string
	domainUndefineCalls   []string
	networkDefineXMLCalls []string
	networkCreateCalls    []string
	networkDestroyCalls   []string
}

// newMockRPC creates a mock with defaults: every lookup succeeds, every
// mutation succeeds, every domain reports running and every network
// reports active.
func newMockRPC() *mockRPC {
	m := &mockRPC{}

	m.domainLookupByNameFunc = func(name string) (golibvirt.Domain, error) {
		return golibvirt.Domain{Name: name}, nil
	}
	m.domainDefineXMLFunc = func(xml string) (golibvirt.Domain, error) {
		return golibvirt.Domain{Name: "test-vm"}, nil
	}
	m.domainCreateFunc = func(dom golibvirt.Domain) error { return nil }
	m.domainResumeFunc = func(dom golibvirt.Domain) error { return nil }
	m.domainDestroyFunc = func(dom golibvirt.Domain) error { return nil }
	m.domainUndefineFunc = func(dom golibvirt.Domain) error { return nil }
	m.domainGetStateFunc = func(dom golibvirt.Domain, flags uint32) (int32, int32, error) {
		return virDomainRunning, 0, nil
	}
	m.domainSetAutostartFunc = func(dom golibvirt.Domain, autostart int32) error { return nil }

	m.networkLookupByNameFunc = func(name string) (golibvirt.Network, error) {
		return golibvirt.Network{Name: name}, nil
	}
	m.networkDefineXMLFunc = func(xml string) (golibvirt.Network, error) {
		return golibvirt.Network{Name: "test-net"}, nil
	}
	m.networkCreateFunc = func(net golibvirt.Network) error { return nil }
	m.networkDestroyFunc = func(net golibvirt.Network) error { return nil }
	m.networkUndefineFunc = func(net golibvirt.Network) error { return nil }
	m.networkSetAutostartFunc = func(net golibvirt.Network, autostart int32) error { return nil }
	m.networkIsActiveFunc = func(net golibvirt.Network) (int32, error) { return 1, nil }
	m.networkGetDhcpLeasesFunc = func(net golibvirt.Network, mac golibvirt.OptString, needResults int32, flags uint32) ([]golibvirt.NetworkDhcpLease, uint32, error) {
		return nil, 0, nil
	}

	return m
}

// notFound simulates the lookup error libvirt returns for absent
// resources.
func notFound(kind, name string) error {
	return fmt.Errorf("%s not found: %s", kind, name)
}

func (m *mockRPC) DomainLookupByName(name string) (golibvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainLookupByNameFunc(name)
}

func (m *mockRPC) DomainDefineXML(xml string) (golibvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDefineXMLCalls = append(m.domainDefineXMLCalls, xml)
	return m.domainDefineXMLFunc(xml)
}

func (m *mockRPC) DomainCreate(dom golibvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCreateCalls = append(m.domainCreateCalls, dom.Name)
	return m.domainCreateFunc(dom)
}

func (m *mockRPC) DomainResume(dom golibvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainResumeCalls = append(m.domainResumeCalls, dom.Name)
	return m.domainResumeFunc(dom)
}

func (m *mockRPC) DomainDestroy(dom golibvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainDestroyCalls = append(m.domainDestroyCalls, dom.Name)
	return m.domainDestroyFunc(dom)
}

func (m *mockRPC) DomainUndefine(dom golibvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainUndefineCalls = append(m.domainUndefineCalls, dom.Name)
	return m.domainUndefineFunc(dom)
}

func (m *mockRPC) DomainGetState(dom golibvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainGetStateFunc(dom, flags)
}

func (m *mockRPC) DomainSetAutostart(dom golibvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domainSetAutostartFunc(dom, autostart)
}

func (m *mockRPC) NetworkLookupByName(name string) (golibvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkLookupByNameFunc(name)
}

func (m *mockRPC) NetworkDefineXML(xml string) (golibvirt.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkDefineXMLCalls = append(m.networkDefineXMLCalls, xml)
	return m.networkDefineXMLFunc(xml)
}

func (m *mockRPC) NetworkCreate(net golibvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkCreateCalls = append(m.networkCreateCalls, net.Name)
	return m.networkCreateFunc(net)
}

func (m *mockRPC) NetworkDestroy(net golibvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkDestroyCalls = append(m.networkDestroyCalls, net.Name)
	return m.networkDestroyFunc(net)
}

func (m *mockRPC) NetworkUndefine(net golibvirt.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkUndefineFunc(net)
}

func (m *mockRPC) NetworkSetAutostart(net golibvirt.Network, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkSetAutostartFunc(net, autostart)
}

func (m *mockRPC) NetworkIsActive(net golibvirt.Network) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkIsActiveFunc(net)
}

func (m *mockRPC) NetworkGetDhcpLeases(net golibvirt.Network, mac golibvirt.OptString, needResults int32, flags uint32) ([]golibvirt.NetworkDhcpLease, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkGetDhcpLeasesFunc(net, mac, needResults, flags)
}

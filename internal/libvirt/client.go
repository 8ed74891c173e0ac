package libvirt

import (
	"context"
	"fmt"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocketPath is the local qemu:///system UNIX socket.
	DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

	// DefaultDialTimeout bounds the initial socket dial.
	DefaultDialTimeout = 5 * time.Second

	// DefaultCallTimeout bounds each individual control-plane call.
	DefaultCallTimeout = 30 * time.Second
)

// Client wraps a go-libvirt connection and provides the typed
// control-plane operations defined in control.go.
type Client struct {
	libvirt *golibvirt.Libvirt
	rpc     rpc
	timeout time.Duration
}

// Connect establishes a connection to the local libvirt daemon and
// returns a Client that must be closed via Close when done.
//
// An empty socketPath selects DefaultSocketPath; a zero dialTimeout
// selects DefaultDialTimeout.
func Connect(socketPath string, dialTimeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(dialTimeout),
	)

	l := golibvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l, rpc: l, timeout: DefaultCallTimeout}, nil
}

// ConnectWithContext establishes a connection with context support for
// cancellation.
func ConnectWithContext(ctx context.Context, socketPath string, dialTimeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, dialTimeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close on a client that never connected.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	if err := c.libvirt.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Ping verifies the connection is still alive.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// Version returns the libvirt library version of the connected daemon.
func (c *Client) Version() (uint64, error) {
	if c.libvirt == nil {
		return 0, fmt.Errorf("client not connected")
	}
	return c.libvirt.ConnectGetLibVersion()
}

// Package libvirt wraps the go-libvirt RPC connection and exposes the
// typed control-plane operations the lab managers need: domain and
// network define/start/stop/undefine, runtime state queries and DHCP
// lease listing.
//
// Runtime state is always recomputed from live queries and never cached
// across invocations. Every mutating call runs under an explicit
// timeout; a call that exceeds it fails with ErrTimeout instead of
// hanging the workflow.
package libvirt

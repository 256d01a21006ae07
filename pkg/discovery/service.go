package discovery

import (
	"context"
	"net"
)

const (
	DefaultServerType = "_peertalk._tcp"
	DefaultDomain     = "local"
)

// ServiceInfo describes one peer announced on the local network. PeerID is
// the identity used for signaling; Addr and Port locate its signaling
// endpoint.
type ServiceInfo struct {
	Name   string // instance name
	Type   string // service name, e.g., "_peertalk._tcp"
	Domain string // domain, e.g., "local"
	PeerID string
	Addr   net.IP
	Port   int
}

// DiscoveryResult carries either a snapshot of the currently visible peers or
// an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

// Adapter abstracts the discovery mechanism so the application can run
// against mDNS in production and a fake in tests.
type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}

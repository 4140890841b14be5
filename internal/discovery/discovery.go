// Package discovery finds relay servers on the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_collabboard._tcp"
	Domain  = "local."
)

var ErrNotFound = errors.New("discovery: no server found")

// Advertise registers this server until ctx is done.
func Advertise(ctx context.Context, instance string, port int) error {
	if instance == "" {
		host, _ := os.Hostname()
		instance = "collabboard-" + host
	}
	srv, err := zeroconf.Register(instance, Service, Domain, port, []string{"path=/ws"}, nil)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// Peer is a server seen on the network.
type Peer struct {
	Instance string
	Host     string
	Port     int
}

// Addr returns host:port for dialing.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Browse collects the servers announced within timeout, one per instance.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	return collect(ctx, entries), nil
}

// collect reads entries until ctx is done or the channel closes.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Peer {
	var peers []Peer
	seen := make(map[string]bool)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return peers
			}
			p, ok := toPeer(e)
			if !ok || seen[p.Instance] {
				continue
			}
			seen[p.Instance] = true
			peers = append(peers, p)
		case <-ctx.Done():
			return peers
		}
	}
}

// First returns the first server that answers within timeout.
func First(ctx context.Context, timeout time.Duration) (Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Peer{}, fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return Peer{}, fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return Peer{}, ErrNotFound
			}
			if p, ok := toPeer(e); ok {
				return p, nil
			}
		case <-ctx.Done():
			return Peer{}, ErrNotFound
		}
	}
}

func toPeer(e *zeroconf.ServiceEntry) (Peer, bool) {
	p := Peer{Instance: e.Instance, Port: e.Port}
	switch {
	case len(e.AddrIPv4) > 0:
		p.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		p.Host = e.AddrIPv6[0].String()
	case e.HostName != "":
		p.Host = e.HostName
	default:
		return Peer{}, false
	}
	return p, true
}

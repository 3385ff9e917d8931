// Package netaddr resolves hostname/service pairs to numeric IPv4
// addresses and ports, the collaborator that turns a user-supplied
// "host:service" string into the 32-bit address the network interface and
// IPv4 framing layer operate on.
package netaddr

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// fallbackNameserver is queried directly via QueryA when the system
// resolver is unusable, e.g. a sandboxed network namespace with no
// /etc/resolv.conf.
const fallbackNameserver = "8.8.8.8:53"

// Address is a resolved IPv4 endpoint.
type Address struct {
	ip   net.IP
	port uint16
}

// New resolves host and service (a port number or a well-known service
// name such as "https") using the system resolver, falling back to a
// direct query against fallbackNameserver if the system resolver fails.
func New(ctx context.Context, host, service string) (Address, error) {
	return NewWithResolver(ctx, net.DefaultResolver, host, service)
}

// NewWithResolver is like New but resolves through the given *net.Resolver,
// letting callers point lookups at a specific nameserver. If resolver
// fails, it falls back to QueryA against fallbackNameserver before giving
// up.
func NewWithResolver(ctx context.Context, resolver *net.Resolver, host, service string) (Address, error) {
	port, err := resolvePort(service)
	if err != nil {
		return Address{}, err
	}

	ips, err := resolver.LookupIP(ctx, "ip4", host)
	if err == nil && len(ips) > 0 {
		return Address{ip: ips[0].To4(), port: port}, nil
	}

	ip, fallbackErr := QueryA(ctx, fallbackNameserver, host)
	if fallbackErr != nil {
		if err == nil {
			err = fmt.Errorf("netaddr: no A record for %q", host)
		}
		return Address{}, fmt.Errorf("netaddr: resolve %q: %w (fallback: %v)", host, err, fallbackErr)
	}
	return Address{ip: ip.To4(), port: port}, nil
}

// FromLiteral builds an Address from a numeric IPv4 literal and a numeric
// port, without performing any resolution.
func FromLiteral(ipLiteral string, port uint16) (Address, error) {
	ip := net.ParseIP(ipLiteral)
	if ip == nil || ip.To4() == nil {
		return Address{}, fmt.Errorf("netaddr: invalid IPv4 literal %q", ipLiteral)
	}
	return Address{ip: ip.To4(), port: port}, nil
}

func resolvePort(service string) (uint16, error) {
	if n, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(n), nil
	}
	port, err := net.LookupPort("tcp", service)
	if err != nil {
		return 0, fmt.Errorf("netaddr: resolve service %q: %w", service, err)
	}
	return uint16(port), nil
}

// IP returns the resolved IPv4 address.
func (a Address) IP() net.IP { return a.ip }

// Port returns the resolved port.
func (a Address) Port() uint16 { return a.port }

// IPv4Numeric returns the address as a big-endian-ordered uint32, the
// representation used throughout the wire-level packet building.
func (a Address) IPv4Numeric() uint32 {
	b := a.ip.To4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// String renders the address as "ip:port".
func (a Address) String() string {
	return net.JoinHostPort(a.ip.String(), strconv.Itoa(int(a.port)))
}

// QueryA performs a one-shot A-record lookup against a specific nameserver,
// bypassing the system resolver entirely. Used for environments (test
// harnesses, sandboxed network namespaces) where /etc/resolv.conf doesn't
// point at a usable resolver.
func QueryA(ctx context.Context, nameserver, name string) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	client := new(dns.Client)
	client.Timeout = 5 * time.Second

	addr := nameserver
	if _, _, err := net.SplitHostPort(nameserver); err != nil {
		addr = net.JoinHostPort(nameserver, "53")
	}

	resp, _, err := client.ExchangeContext(ctx, m, addr)
	if err != nil {
		return nil, fmt.Errorf("netaddr: query %q via %s: %w", name, addr, err)
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("netaddr: no A record for %q from %s", name, addr)
}

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sockets

import (
	"context"
	"log/slog"
	stdnet "net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/noisysockets/sockets/internal/dns"
	"github.com/noisysockets/sockets/internal/dns/addrselect"
	"github.com/noisysockets/sockets/network"
	"github.com/noisysockets/sockets/networkutil"
	"golang.org/x/sys/unix"
)

// Flags for Hints.Flags, see getaddrinfo(3). The values match glibc.
const (
	AI_PASSIVE     = 0x1
	AI_CANONNAME   = 0x2
	AI_NUMERICHOST = 0x4
	AI_V4MAPPED    = 0x8
	AI_ALL         = 0x10
	AI_ADDRCONFIG  = 0x20
	AI_NUMERICSERV = 0x400

	aiMask = AI_PASSIVE | AI_CANONNAME | AI_NUMERICHOST | AI_V4MAPPED |
		AI_ALL | AI_ADDRCONFIG | AI_NUMERICSERV
)

// Hints restricts the candidates returned by GetAddrInfo. The zero value
// asks for every family and socket type.
type Hints struct {
	Flags      int
	Family     int
	SocketType int
	Protocol   int
}

// AddrInfo is one candidate endpoint.
type AddrInfo struct {
	Flags      int
	Family     int
	SocketType int
	Protocol   int
	Addr       unix.Sockaddr
	// CanonName is only set on the first entry, and only when
	// AI_CANONNAME was requested.
	CanonName string
}

// AddrInfoList is the ordered result of a successful resolution. It is
// owned by the caller and should be released once it is no longer needed.
type AddrInfoList struct {
	entries []AddrInfo
}

// Entries returns the candidates, best first. It is empty once the list
// has been released.
func (l *AddrInfoList) Entries() []AddrInfo {
	if l == nil {
		return nil
	}
	return l.entries
}

// Len returns the number of candidates.
func (l *AddrInfoList) Len() int {
	return len(l.Entries())
}

// Release frees the list, see freeaddrinfo(3). Releasing an already
// released list does nothing.
func (l *AddrInfoList) Release() {
	if l == nil {
		return
	}
	clear(l.entries)
	l.entries = nil
}

// Resolver translates host and service names into candidate endpoints.
type Resolver struct {
	logger *slog.Logger
	net    network.Network
	names  dns.Resolver
	prober addrselect.SourceProber
}

// DefaultResolver resolves names using the system configuration.
var DefaultResolver = newResolver(nil, network.Host(), dns.System(), &udpProber{})

// NewResolver creates a resolver. If nameservers is empty the system
// configuration is used, otherwise names are resolved by querying the
// nameservers directly over protocol ("udp" or "tcp").
func NewResolver(logger *slog.Logger, protocol string, nameservers []netip.AddrPort) (*Resolver, error) {
	net := network.Host()

	names := dns.System()
	if len(nameservers) > 0 {
		var err error
		names, err = dns.NewResolver(net, protocol, nameservers)
		if err != nil {
			return nil, err
		}
	}

	return newResolver(logger, net, names, &udpProber{}), nil
}

func newResolver(logger *slog.Logger, net network.Network, names dns.Resolver, prober addrselect.SourceProber) *Resolver {
	return &Resolver{
		logger: logger,
		net:    net,
		names:  names,
		prober: prober,
	}
}

// GetAddrInfo resolves node and service using the DefaultResolver.
func GetAddrInfo(ctx context.Context, node, service string, hints *Hints) (*AddrInfoList, error) {
	return DefaultResolver.GetAddrInfo(ctx, node, service, hints)
}

// GetAddrInfo resolves a node (a host name or numeric address) and a
// service (a service name or numeric port) into a list of candidate
// endpoints, see getaddrinfo(3). Either may be empty but not both. A nil
// hints is the same as the zero Hints.
//
// Failures are reported as an *OpError wrapping an AddrinfoErrno.
func (r *Resolver) GetAddrInfo(ctx context.Context, node, service string, hints *Hints) (*AddrInfoList, error) {
	var h Hints
	if hints != nil {
		h = *hints
	}

	entries, code := r.getAddrInfo(ctx, node, service, h)
	if err := checkResolve(code); err != nil {
		r.log().Debug("Address resolution failed",
			"node", node, "service", service, "error", err)
		return nil, err
	}

	r.log().Debug("Resolved addresses",
		"node", node, "service", service, "candidates", len(entries))

	return &AddrInfoList{entries: entries}, nil
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

func (r *Resolver) getAddrInfo(ctx context.Context, node, service string, h Hints) ([]AddrInfo, AddrinfoErrno) {
	if node == "" && service == "" {
		return nil, EAI_NONAME
	}

	if h.Flags&^aiMask != 0 {
		return nil, EAI_BADFLAGS
	}
	if h.Flags&AI_CANONNAME != 0 && node == "" {
		return nil, EAI_BADFLAGS
	}

	switch h.Family {
	case unix.AF_UNSPEC, unix.AF_INET, unix.AF_INET6:
	default:
		return nil, EAI_FAMILY
	}

	types, code := socketTypes(h.SocketType, h.Protocol, service != "")
	if code != 0 {
		return nil, code
	}

	if service != "" {
		if types, code = r.lookupPorts(ctx, types, service, h.Flags); code != 0 {
			return nil, code
		}
	}

	family := h.Family
	if h.Flags&AI_ADDRCONFIG != 0 {
		if family, code = r.configuredFamily(family); code != 0 {
			return nil, code
		}
	}

	addrs, canonName, code := r.lookupAddrs(ctx, node, family, h.Flags)
	if code != 0 {
		return nil, code
	}

	if len(addrs) > 1 {
		addrselect.SortByRFC6724(r.prober, addrs)
	}

	entries := make([]AddrInfo, 0, len(addrs)*len(types))
	for _, addr := range addrs {
		addrFamily := unix.AF_INET6
		if addr.Is4() {
			addrFamily = unix.AF_INET
		}

		for _, t := range types {
			entries = append(entries, AddrInfo{
				Flags:      h.Flags,
				Family:     addrFamily,
				SocketType: t.sotype,
				Protocol:   t.proto,
				Addr:       SockaddrFromAddrPort(netip.AddrPortFrom(addr, t.port)),
			})
		}
	}

	if h.Flags&AI_CANONNAME != 0 && len(entries) > 0 {
		entries[0].CanonName = canonName
	}

	return entries, 0
}

type socketType struct {
	sotype  int
	proto   int
	port    uint16
	network string
}

// socketTypes returns the socket types an entry is expanded into for each
// address, in the order they are reported.
func socketTypes(sotype, proto int, hasService bool) ([]socketType, AddrinfoErrno) {
	known := []socketType{
		{sotype: unix.SOCK_STREAM, proto: unix.IPPROTO_TCP, network: "tcp"},
		{sotype: unix.SOCK_DGRAM, proto: unix.IPPROTO_UDP, network: "udp"},
		{sotype: unix.SOCK_RAW, proto: 0},
	}

	switch sotype {
	case 0, unix.SOCK_STREAM, unix.SOCK_DGRAM, unix.SOCK_RAW:
	default:
		return nil, EAI_SOCKTYPE
	}

	var types []socketType
	for _, t := range known {
		if sotype != 0 && sotype != t.sotype {
			continue
		}

		if t.sotype == unix.SOCK_RAW {
			// Raw sockets have no ports and take any protocol.
			if hasService {
				if sotype == unix.SOCK_RAW {
					return nil, EAI_SERVICE
				}
				continue
			}
			t.proto = proto
		} else if proto != 0 && proto != t.proto {
			continue
		}

		types = append(types, t)
	}

	if len(types) == 0 {
		if sotype != 0 {
			return nil, EAI_SOCKTYPE
		}
		return nil, EAI_SERVICE
	}

	return types, 0
}

// lookupPorts fills in the port of each socket type, dropping the types
// that a named service is not defined for.
func (r *Resolver) lookupPorts(ctx context.Context, types []socketType, service string, flags int) ([]socketType, AddrinfoErrno) {
	if port, err := strconv.ParseUint(service, 10, 16); err == nil {
		for i := range types {
			types[i].port = uint16(port)
		}
		return types, 0
	} else if isDigits(service) {
		// Numeric, but out of range.
		return nil, EAI_SERVICE
	}

	if flags&AI_NUMERICSERV != 0 {
		return nil, EAI_NONAME
	}

	var found []socketType
	for _, t := range types {
		port, err := stdnet.DefaultResolver.LookupPort(ctx, t.network, service)
		if err != nil {
			continue
		}
		t.port = uint16(port)
		found = append(found, t)
	}

	if len(found) == 0 {
		return nil, EAI_SERVICE
	}

	return found, 0
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// configuredFamily narrows family to the families the host has a
// non-loopback address configured for.
func (r *Resolver) configuredFamily(family int) (int, AddrinfoErrno) {
	interfaceAddrs, err := r.net.InterfaceAddrs()
	if err != nil {
		r.log().Warn("Failed to list interface addresses", "error", err)
		return family, 0
	}

	addrs, ok := networkutil.ToNetIPAddrs(interfaceAddrs)
	if !ok {
		r.log().Warn("Unexpected interface address type")
		return family, 0
	}
	addrs = networkutil.WithoutLoopback(addrs)

	hasIPv4, hasIPv6 := networkutil.HasIPv4(addrs), networkutil.HasIPv6(addrs)

	switch family {
	case unix.AF_INET:
		if !hasIPv4 {
			return 0, EAI_NONAME
		}
	case unix.AF_INET6:
		if !hasIPv6 {
			return 0, EAI_NONAME
		}
	default:
		if hasIPv4 && !hasIPv6 {
			return unix.AF_INET, 0
		}
		if hasIPv6 && !hasIPv4 {
			return unix.AF_INET6, 0
		}
	}

	return family, 0
}

// lookupAddrs returns the addresses of node, and its canonical name.
func (r *Resolver) lookupAddrs(ctx context.Context, node string, family, flags int) ([]netip.Addr, string, AddrinfoErrno) {
	if node == "" {
		return wildcardAddrs(family, flags&AI_PASSIVE != 0), "", 0
	}

	if addr, err := netip.ParseAddr(node); err == nil {
		addr, code := numericAddr(addr, family, flags)
		if code != 0 {
			return nil, "", code
		}
		return []netip.Addr{addr}, node, 0
	}

	if flags&AI_NUMERICHOST != 0 {
		return nil, "", EAI_NONAME
	}

	addrs, code := r.lookupHost(ctx, node, family, flags)
	if code != 0 {
		return nil, "", code
	}

	canonName := node
	if flags&AI_CANONNAME != 0 {
		cname, err := r.names.LookupCNAME(ctx, node)
		if err != nil {
			r.log().Debug("Failed to look up canonical name",
				"node", node, "error", err)
		} else if cname = strings.TrimSuffix(cname, "."); cname != "" {
			canonName = cname
		}
	}

	return addrs, canonName, 0
}

func wildcardAddrs(family int, passive bool) []netip.Addr {
	v4, v6 := netip.AddrFrom4([4]byte{127, 0, 0, 1}), netip.IPv6Loopback()
	if passive {
		v4, v6 = netip.IPv4Unspecified(), netip.IPv6Unspecified()
	}

	switch family {
	case unix.AF_INET:
		return []netip.Addr{v4}
	case unix.AF_INET6:
		return []netip.Addr{v6}
	default:
		return []netip.Addr{v6, v4}
	}
}

func numericAddr(addr netip.Addr, family, flags int) (netip.Addr, AddrinfoErrno) {
	switch {
	case addr.Is4():
		switch {
		case family == unix.AF_UNSPEC || family == unix.AF_INET:
			return addr, 0
		case family == unix.AF_INET6 && flags&AI_V4MAPPED != 0:
			return netip.AddrFrom16(addr.As16()), 0
		}
	default:
		switch {
		case family == unix.AF_UNSPEC || family == unix.AF_INET6:
			return addr, 0
		case family == unix.AF_INET && addr.Is4In6():
			return addr.Unmap(), 0
		}
	}

	return netip.Addr{}, EAI_ADDRFAMILY
}

// lookupHost resolves a host name through the name resolver.
func (r *Resolver) lookupHost(ctx context.Context, node string, family, flags int) ([]netip.Addr, AddrinfoErrno) {
	var (
		addrs []netip.Addr
		err   error
	)

	switch family {
	case unix.AF_INET:
		addrs, err = r.names.LookupNetIP(ctx, "ip4", node)
	case unix.AF_INET6:
		addrs, err = r.names.LookupNetIP(ctx, "ip6", node)
		if flags&AI_V4MAPPED != 0 && (len(addrs) == 0 || flags&AI_ALL != 0) {
			v4Addrs, v4Err := r.names.LookupNetIP(ctx, "ip4", node)
			for _, addr := range v4Addrs {
				addrs = append(addrs, netip.AddrFrom16(addr.As16()))
			}
			if len(addrs) > 0 {
				err = nil
			} else if err == nil {
				err = v4Err
			}
		}
	default:
		addrs, err = r.names.LookupNetIP(ctx, "ip", node)
	}

	if len(addrs) == 0 {
		if err != nil {
			return nil, eaiFromLookupError(err)
		}
		return nil, EAI_NONAME
	}

	return dedupe(addrs), 0
}

func dedupe(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(addrs))
	unique := addrs[:0]
	for _, addr := range addrs {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		unique = append(unique, addr)
	}
	return unique
}

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
	"errors"
	stdnet "net"
	"net/netip"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestGetAddrInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("Localhost has an IPv4 candidate", func(t *testing.T) {
		list, err := GetAddrInfo(ctx, "localhost", "", &Hints{
			Family:     unix.AF_UNSPEC,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		defer list.Release()

		require.NotZero(t, list.Len())

		var hasIPv4 bool
		for _, ai := range list.Entries() {
			require.Contains(t, []int{unix.AF_INET, unix.AF_INET6}, ai.Family)
			require.Equal(t, unix.SOCK_STREAM, ai.SocketType)
			if ai.Family == unix.AF_INET {
				hasIPv4 = true
			}
		}
		require.True(t, hasIPv4)
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		list, err := GetAddrInfo(ctx, "127.0.0.1", "", nil)
		require.NoError(t, err)

		list.Release()
		require.Zero(t, list.Len())
		list.Release()
		require.Nil(t, list.Entries())
	})

	t.Run("Errors", func(t *testing.T) {
		r := newTestResolver(t)

		tests := []struct {
			name    string
			node    string
			service string
			hints   Hints
			want    AddrinfoErrno
		}{
			{name: "No node or service", want: EAI_NONAME},
			{name: "Unknown flag", node: "127.0.0.1", hints: Hints{Flags: 0x8000}, want: EAI_BADFLAGS},
			{name: "Canonical name without node", service: "80", hints: Hints{Flags: AI_CANONNAME}, want: EAI_BADFLAGS},
			{name: "Unsupported family", node: "127.0.0.1", hints: Hints{Family: unix.AF_UNIX}, want: EAI_FAMILY},
			{name: "Unsupported socket type", node: "127.0.0.1", hints: Hints{SocketType: unix.SOCK_SEQPACKET}, want: EAI_SOCKTYPE},
			{name: "Mismatched protocol", node: "127.0.0.1", hints: Hints{SocketType: unix.SOCK_STREAM, Protocol: unix.IPPROTO_UDP}, want: EAI_SOCKTYPE},
			{name: "Service with raw socket", node: "127.0.0.1", service: "80", hints: Hints{SocketType: unix.SOCK_RAW}, want: EAI_SERVICE},
			{name: "Unknown service", node: "127.0.0.1", service: "no-such-service", want: EAI_SERVICE},
			{name: "Port out of range", node: "127.0.0.1", service: "65536", want: EAI_SERVICE},
			{name: "Named service with numeric only", node: "127.0.0.1", service: "http", hints: Hints{Flags: AI_NUMERICSERV}, want: EAI_NONAME},
			{name: "Name with numeric only", node: "example.com", hints: Hints{Flags: AI_NUMERICHOST}, want: EAI_NONAME},
			{name: "IPv6 address for IPv4 family", node: "::1", hints: Hints{Family: unix.AF_INET}, want: EAI_ADDRFAMILY},
			{name: "IPv4 address for IPv6 family", node: "127.0.0.1", hints: Hints{Family: unix.AF_INET6}, want: EAI_ADDRFAMILY},
			{name: "Unknown host", node: "missing.example.com", want: EAI_NONAME},
			{name: "Temporary failure", node: "flaky.example.com", want: EAI_AGAIN},
			{name: "Permanent failure", node: "broken.example.com", want: EAI_FAIL},
			{name: "No addresses of family", node: "v4only.example.com", hints: Hints{Family: unix.AF_INET6}, want: EAI_NONAME},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				hints := tt.hints
				_, err := r.GetAddrInfo(ctx, tt.node, tt.service, &hints)
				require.Error(t, err)

				var opErr *OpError
				require.ErrorAs(t, err, &opErr)
				require.Equal(t, "getaddrinfo", opErr.Op)

				require.ErrorIs(t, err, tt.want)
				require.Equal(t, "getaddrinfo error: "+tt.want.Error(), err.Error())
			})
		}
	})

	t.Run("Socket types", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "127.0.0.1", "", nil)
		require.NoError(t, err)

		require.Equal(t, []int{unix.SOCK_STREAM, unix.SOCK_DGRAM, unix.SOCK_RAW}, socketTypesOf(list))
		require.Equal(t, unix.IPPROTO_TCP, list.Entries()[0].Protocol)
		require.Equal(t, unix.IPPROTO_UDP, list.Entries()[1].Protocol)

		list, err = r.GetAddrInfo(ctx, "127.0.0.1", "8080", nil)
		require.NoError(t, err)

		require.Equal(t, []int{unix.SOCK_STREAM, unix.SOCK_DGRAM}, socketTypesOf(list))
		for _, ai := range list.Entries() {
			require.Equal(t, "127.0.0.1:8080", FormatSockaddr(ai.Addr))
		}
	})

	t.Run("Named service", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "127.0.0.1", "http", &Hints{SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.Equal(t, 1, list.Len())
		require.Equal(t, "127.0.0.1:80", FormatSockaddr(list.Entries()[0].Addr))
	})

	t.Run("Wildcard and loopback", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "", "80", &Hints{Flags: AI_PASSIVE, SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"0.0.0.0:80", "[::]:80"}, sockaddrsOf(list))

		list, err = r.GetAddrInfo(ctx, "", "80", &Hints{SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"127.0.0.1:80", "[::1]:80"}, sockaddrsOf(list))

		list, err = r.GetAddrInfo(ctx, "", "80", &Hints{Family: unix.AF_INET, SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.Equal(t, []string{"127.0.0.1:80"}, sockaddrsOf(list))
	})

	t.Run("Destination ordering", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "dual.example.com", "", &Hints{SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.Equal(t, []string{"[2001:db8::1]:0", "192.0.2.1:0"}, sockaddrsOf(list))
		require.Equal(t, unix.AF_INET6, list.Entries()[0].Family)
		require.Equal(t, unix.AF_INET, list.Entries()[1].Family)
	})

	t.Run("Canonical name", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "www.example.com", "", &Hints{
			Flags:      AI_CANONNAME,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.Equal(t, "dual.example.com", list.Entries()[0].CanonName)
		require.Empty(t, list.Entries()[1].CanonName)

		list, err = r.GetAddrInfo(ctx, "192.0.2.1", "", &Hints{
			Flags:      AI_CANONNAME,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.Equal(t, "192.0.2.1", list.Entries()[0].CanonName)

		list, err = r.GetAddrInfo(ctx, "dual.example.com", "", &Hints{SocketType: unix.SOCK_STREAM})
		require.NoError(t, err)
		require.Empty(t, list.Entries()[0].CanonName)
	})

	t.Run("IPv4 mapped", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "v4only.example.com", "", &Hints{
			Flags:      AI_V4MAPPED,
			Family:     unix.AF_INET6,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"[::ffff:192.0.2.2]:0"}, sockaddrsOf(list))

		list, err = r.GetAddrInfo(ctx, "dual.example.com", "", &Hints{
			Flags:      AI_V4MAPPED | AI_ALL,
			Family:     unix.AF_INET6,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"[2001:db8::1]:0", "[::ffff:192.0.2.1]:0"}, sockaddrsOf(list))

		list, err = r.GetAddrInfo(ctx, "192.0.2.1", "", &Hints{
			Flags:      AI_V4MAPPED,
			Family:     unix.AF_INET6,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"[::ffff:192.0.2.1]:0"}, sockaddrsOf(list))
	})

	t.Run("Address configuration", func(t *testing.T) {
		r := newTestResolver(t)
		r.net = &fakeNetwork{addrs: []stdnet.Addr{
			&stdnet.IPNet{IP: stdnet.IPv4(127, 0, 0, 1), Mask: stdnet.CIDRMask(8, 32)},
			&stdnet.IPNet{IP: stdnet.ParseIP("::1"), Mask: stdnet.CIDRMask(128, 128)},
			&stdnet.IPNet{IP: stdnet.IPv4(192, 0, 2, 100), Mask: stdnet.CIDRMask(24, 32)},
		}}

		list, err := r.GetAddrInfo(ctx, "dual.example.com", "", &Hints{
			Flags:      AI_ADDRCONFIG,
			SocketType: unix.SOCK_STREAM,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"192.0.2.1:0"}, sockaddrsOf(list))

		_, err = r.GetAddrInfo(ctx, "dual.example.com", "", &Hints{
			Flags:      AI_ADDRCONFIG,
			Family:     unix.AF_INET6,
			SocketType: unix.SOCK_STREAM,
		})
		require.ErrorIs(t, err, EAI_NONAME)
	})

	t.Run("Zoned address", func(t *testing.T) {
		r := newTestResolver(t)

		list, err := r.GetAddrInfo(ctx, "fe80::1%1", "", &Hints{SocketType: unix.SOCK_DGRAM})
		require.NoError(t, err)
		require.Equal(t, 1, list.Len())

		sa, ok := list.Entries()[0].Addr.(*unix.SockaddrInet6)
		require.True(t, ok)
		require.Equal(t, uint32(1), sa.ZoneId)
	})
}

func newTestResolver(t *testing.T) *Resolver {
	names := &fakeNames{
		addrs: map[string][]netip.Addr{
			"dual.example.com": {
				netip.MustParseAddr("192.0.2.1"),
				netip.MustParseAddr("2001:db8::1"),
			},
			"v4only.example.com": {
				netip.MustParseAddr("192.0.2.2"),
			},
		},
		cnames: map[string]string{
			"www.example.com": "dual.example.com.",
		},
		errs: map[string]error{
			"flaky.example.com":  &stdnet.DNSError{Err: "server misbehaving", IsTemporary: true},
			"broken.example.com": errors.New("malformed response"),
		},
	}

	return newResolver(slogt.New(t), &fakeNetwork{}, names, &reachableProber{})
}

func socketTypesOf(list *AddrInfoList) []int {
	var types []int
	for _, ai := range list.Entries() {
		types = append(types, ai.SocketType)
	}
	return types
}

func sockaddrsOf(list *AddrInfoList) []string {
	var addrs []string
	for _, ai := range list.Entries() {
		addrs = append(addrs, FormatSockaddr(ai.Addr))
	}
	return addrs
}

type fakeNames struct {
	addrs  map[string][]netip.Addr
	cnames map[string]string
	errs   map[string]error
}

func (n *fakeNames) LookupNetIP(_ context.Context, network, host string) ([]netip.Addr, error) {
	if err, ok := n.errs[host]; ok {
		return nil, err
	}

	if cname, ok := n.cnames[host]; ok {
		host = cname[:len(cname)-1]
	}

	var addrs []netip.Addr
	for _, addr := range n.addrs[host] {
		if (network == "ip4" && !addr.Is4()) || (network == "ip6" && !addr.Is6()) {
			continue
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		return nil, &stdnet.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}

	return addrs, nil
}

func (n *fakeNames) LookupCNAME(_ context.Context, host string) (string, error) {
	if cname, ok := n.cnames[host]; ok {
		return cname, nil
	}
	return host + ".", nil
}

type fakeNetwork struct {
	addrs []stdnet.Addr
}

func (n *fakeNetwork) InterfaceAddrs() ([]stdnet.Addr, error) {
	return n.addrs, nil
}

func (n *fakeNetwork) DialContext(_ context.Context, network, address string) (stdnet.Conn, error) {
	return nil, &stdnet.OpError{Op: "dial", Net: network, Err: errors.New("no network")}
}

// reachableProber treats every destination as reachable from itself.
type reachableProber struct{}

func (p *reachableProber) SourceAddr(dst netip.Addr) (netip.Addr, bool) {
	return dst, true
}

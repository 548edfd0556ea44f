// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package networkutil contains helpers for working with interface addresses.
package networkutil

import (
	stdnet "net"
	"net/netip"
)

// ToNetIPAddrs converts a list of interface addresses (as returned by
// net.InterfaceAddrs) to a list of netip.Addr. IPv4 addresses are returned
// in their 4 byte form.
func ToNetIPAddrs(addrs []stdnet.Addr) ([]netip.Addr, bool) {
	netipAddrs := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		var ip stdnet.IP
		switch a := a.(type) {
		case *stdnet.IPAddr:
			ip = a.IP
		case *stdnet.IPNet:
			ip = a.IP
		default:
			return nil, false
		}

		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return nil, false
		}
		netipAddrs = append(netipAddrs, addr.Unmap())
	}

	return netipAddrs, true
}

// HasIPv4 returns true if the list of addresses contains an IPv4 address.
func HasIPv4(addrs []netip.Addr) bool {
	for _, addr := range addrs {
		if addr.Is4() || addr.Is4In6() {
			return true
		}
	}

	return false
}

// HasIPv6 returns true if the list of addresses contains an IPv6 address.
func HasIPv6(addrs []netip.Addr) bool {
	for _, addr := range addrs {
		if addr.Is6() && !addr.Is4In6() {
			return true
		}
	}

	return false
}

// WithoutLoopback returns the addresses that are not loopback addresses.
func WithoutLoopback(addrs []netip.Addr) []netip.Addr {
	var filtered []netip.Addr
	for _, addr := range addrs {
		if !addr.IsLoopback() {
			filtered = append(filtered, addr)
		}
	}
	return filtered
}

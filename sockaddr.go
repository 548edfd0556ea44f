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
	"fmt"
	stdnet "net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// SockaddrFromAddrPort converts an IP address and port into a socket
// address. IPv6 zones are mapped to interface indexes.
func SockaddrFromAddrPort(addrPort netip.AddrPort) unix.Sockaddr {
	addr := addrPort.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{
			Port: int(addrPort.Port()),
			Addr: addr.As4(),
		}
	}

	return &unix.SockaddrInet6{
		Port:   int(addrPort.Port()),
		ZoneId: zoneToIndex(addr.Zone()),
		Addr:   addr.As16(),
	}
}

// AddrPortFromSockaddr converts an internet socket address back into an IP
// address and port. It reports false for other address families.
func AddrPortFromSockaddr(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), true
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			addr = addr.WithZone(indexToZone(sa.ZoneId))
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port)), true
	default:
		return netip.AddrPort{}, false
	}
}

// Family returns the address family of a socket address.
func Family(sa unix.Sockaddr) int {
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET
	case *unix.SockaddrInet6:
		return unix.AF_INET6
	case *unix.SockaddrUnix:
		return unix.AF_UNIX
	default:
		return unix.AF_UNSPEC
	}
}

// FamilyName returns a display name for an address family.
func FamilyName(family int) string {
	switch family {
	case unix.AF_INET:
		return "IPv4"
	case unix.AF_INET6:
		return "IPv6"
	case unix.AF_UNIX:
		return "Unix"
	case unix.AF_UNSPEC:
		return "Unspecified"
	default:
		return fmt.Sprintf("AF(%d)", family)
	}
}

// FormatAddr returns the presentation form of the address held in a socket
// address, without its port (what inet_ntop(3) produces). Unix socket
// addresses are formatted as their path.
func FormatAddr(sa unix.Sockaddr) string {
	if addrPort, ok := AddrPortFromSockaddr(sa); ok {
		return addrPort.Addr().String()
	}

	if sa, ok := sa.(*unix.SockaddrUnix); ok {
		return sa.Name
	}

	return "<unknown>"
}

// FormatSockaddr is like FormatAddr but includes the port.
func FormatSockaddr(sa unix.Sockaddr) string {
	if addrPort, ok := AddrPortFromSockaddr(sa); ok {
		return addrPort.String()
	}
	return FormatAddr(sa)
}

func zoneToIndex(zone string) uint32 {
	if zone == "" {
		return 0
	}

	if ifi, err := stdnet.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}

	n, err := strconv.ParseUint(zone, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func indexToZone(index uint32) string {
	if ifi, err := stdnet.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(index), 10)
}

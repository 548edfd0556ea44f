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
	"net/netip"

	"github.com/noisysockets/sockets/internal/dns/addrselect"
	"golang.org/x/sys/unix"
)

var _ addrselect.SourceProber = (*udpProber)(nil)

// udpProber finds the source address the kernel would pick for a
// destination by connecting a datagram socket to it. Connecting a
// datagram socket only consults the routing table, nothing is sent.
type udpProber struct{}

func (p *udpProber) SourceAddr(dst netip.Addr) (netip.Addr, bool) {
	family := unix.AF_INET6
	if dst.Is4() {
		family = unix.AF_INET
	}

	s, err := NewSocket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return netip.Addr{}, false
	}
	defer s.Close()

	// The discard port, any port would do.
	if err := s.Connect(SockaddrFromAddrPort(netip.AddrPortFrom(dst, 9))); err != nil {
		return netip.Addr{}, false
	}

	sa, err := s.LocalAddr()
	if err != nil {
		return netip.Addr{}, false
	}

	src, ok := AddrPortFromSockaddr(sa)
	if !ok {
		return netip.Addr{}, false
	}

	return src.Addr(), true
}

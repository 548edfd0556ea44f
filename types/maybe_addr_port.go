// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package types contains value types shared by the configuration and the
// command line tools.
package types

import (
	"fmt"
	"net/netip"
)

// MaybeAddrPort is an address with an optional port, eg. a nameserver
// written as "192.0.2.53" or "192.0.2.53:5353". A missing port is held as 0.
type MaybeAddrPort netip.AddrPort

// MustParseMaybeAddrPort parses text, panicking if it is not valid.
func MustParseMaybeAddrPort(text string) MaybeAddrPort {
	var m MaybeAddrPort
	if err := m.UnmarshalText([]byte(text)); err != nil {
		panic(err)
	}
	return m
}

// ParseMaybeAddrPorts parses a list of addresses with optional ports.
func ParseMaybeAddrPorts(texts []string) ([]MaybeAddrPort, error) {
	addrs := make([]MaybeAddrPort, len(texts))
	for i, text := range texts {
		if err := addrs[i].UnmarshalText([]byte(text)); err != nil {
			return nil, err
		}
	}
	return addrs, nil
}

func (m *MaybeAddrPort) UnmarshalText(text []byte) error {
	addrPort, err := netip.ParseAddrPort(string(text))
	if err != nil {
		addr, err := netip.ParseAddr(string(text))
		if err != nil {
			return fmt.Errorf("could not parse address: %w", err)
		}

		addrPort = netip.AddrPortFrom(addr, 0)
	}

	*m = MaybeAddrPort(addrPort)
	return nil
}

// MarshalText omits the port when it is 0.
func (m MaybeAddrPort) MarshalText() ([]byte, error) {
	addrPort := netip.AddrPort(m)
	if addrPort.Port() == 0 {
		return []byte(addrPort.Addr().String()), nil
	}
	return []byte(addrPort.String()), nil
}

func (m MaybeAddrPort) String() string {
	text, _ := m.MarshalText()
	return string(text)
}

// WithDefaultPort returns the address and port, substituting port if none
// was given.
func (m MaybeAddrPort) WithDefaultPort(port uint16) netip.AddrPort {
	addrPort := netip.AddrPort(m)
	if addrPort.Port() == 0 {
		return netip.AddrPortFrom(addrPort.Addr(), port)
	}
	return addrPort
}

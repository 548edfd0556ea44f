// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package dns provides the name resolvers used for address resolution.
package dns

import (
	"context"
	stdnet "net"
	"net/netip"
)

// Resolver looks up the addresses and canonical name of a host.
type Resolver interface {
	// LookupNetIP looks up the addresses of host. Network is one of "ip",
	// "ip4" or "ip6". Failures are reported as *net.DNSError.
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
	// LookupCNAME returns the canonical name of host, fully qualified.
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// System returns a resolver backed by the system's configuration
// (/etc/hosts, /etc/resolv.conf and nsswitch).
func System() Resolver {
	return &systemResolver{resolver: stdnet.DefaultResolver}
}

type systemResolver struct {
	resolver *stdnet.Resolver
}

func (r *systemResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	addrs, err := r.resolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return nil, err
	}

	// The standard library hands back IPv4 addresses in their 16 byte form.
	for i := range addrs {
		if addrs[i].Is4In6() {
			addrs[i] = addrs[i].Unmap()
		}
	}

	return addrs, nil
}

func (r *systemResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	return r.resolver.LookupCNAME(ctx, host)
}

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package network abstracts the parts of the host network that address
// resolution depends on, so tests can substitute their own.
package network

import (
	"context"
	stdnet "net"
)

// Network is the host network as seen by the resolver.
type Network interface {
	// InterfaceAddrs returns the addresses configured on the host's
	// interfaces.
	InterfaceAddrs() ([]stdnet.Addr, error)
	// DialContext connects to the address on the named network using the
	// provided context. It is used to reach nameservers.
	DialContext(ctx context.Context, network, address string) (stdnet.Conn, error)
}

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package network

import (
	"context"
	stdnet "net"
)

var _ Network = (*hostNetwork)(nil)

// Host returns a Network implementation backed by the host's network stack.
func Host() Network {
	return &hostNetwork{}
}

type hostNetwork struct{}

func (net *hostNetwork) InterfaceAddrs() ([]stdnet.Addr, error) {
	return stdnet.InterfaceAddrs()
}

func (net *hostNetwork) DialContext(ctx context.Context, network, address string) (stdnet.Conn, error) {
	var d stdnet.Dialer
	return d.DialContext(ctx, network, address)
}

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
	"golang.org/x/sys/unix"
)

// Send transmits b on a connected socket, see send(2). It may send fewer
// bytes than len(b), callers that need the whole buffer sent must loop.
func (s *Socket) Send(b []byte, flags int) (int, error) {
	fd, err := s.sysfd("send")
	if err != nil {
		return 0, err
	}

	n, err := ignoreEINTR2(func() (int, error) {
		return unix.SendmsgN(fd, b, nil, nil, flags)
	})
	return checkCount("send", n, err)
}

// Receive reads into b from a connected socket, see recv(2). A zero count
// with a nil error means the peer performed an orderly shutdown.
func (s *Socket) Receive(b []byte, flags int) (int, error) {
	fd, err := s.sysfd("recv")
	if err != nil {
		return 0, err
	}

	n, _, err := ignoreEINTR3(func() (int, unix.Sockaddr, error) {
		return unix.Recvfrom(fd, b, flags)
	})
	return checkReceive("recv", n, err)
}

// SendTo transmits b to the given address, see sendto(2). On a connected
// stream socket the kernel ignores the address.
func (s *Socket) SendTo(b []byte, flags int, to unix.Sockaddr) (int, error) {
	fd, err := s.sysfd("sendto")
	if err != nil {
		return 0, err
	}

	n, err := ignoreEINTR2(func() (int, error) {
		return unix.SendmsgN(fd, b, nil, to, flags)
	})
	return checkCount("sendto", n, err)
}

// ReceiveFrom reads into b and returns the sender's address, see
// recvfrom(2). The address is nil when the socket type does not report one,
// as with connected stream sockets.
func (s *Socket) ReceiveFrom(b []byte, flags int) (int, unix.Sockaddr, error) {
	fd, err := s.sysfd("recvfrom")
	if err != nil {
		return 0, nil, err
	}

	n, from, err := ignoreEINTR3(func() (int, unix.Sockaddr, error) {
		return unix.Recvfrom(fd, b, flags)
	})
	n, err = checkReceive("recvfrom", n, err)
	if err != nil {
		return 0, nil, err
	}

	return n, from, nil
}

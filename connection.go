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

// Connect connects the socket to a peer address, see connect(2). On a
// datagram socket it sets the default destination and the only address
// datagrams are received from.
func (s *Socket) Connect(sa unix.Sockaddr) error {
	fd, err := s.sysfd("connect")
	if err != nil {
		return err
	}

	if sa == nil {
		return checkStatus("connect", unix.EINVAL)
	}

	err = unix.Connect(fd, sa)
	if err == unix.EINTR {
		// An interrupted connect keeps going in the background, calling it
		// again would fail with EALREADY.
		err = waitConnect(fd)
	}

	return checkStatus("connect", err)
}

func waitConnect(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	if _, err := ignoreEINTR2(func() (int, error) {
		return unix.Poll(fds, -1)
	}); err != nil {
		return err
	}

	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}

	return nil
}

// Listen marks the socket as accepting connections, see listen(2). The
// backlog is passed through as is.
func (s *Socket) Listen(backlog int) error {
	fd, err := s.sysfd("listen")
	if err != nil {
		return err
	}

	return checkStatus("listen", unix.Listen(fd, backlog))
}

// Accept blocks until a connection is pending on a listening socket and
// returns it as a new socket together with the peer's address. The
// listening socket stays open.
func (s *Socket) Accept() (*Socket, unix.Sockaddr, error) {
	fd, err := s.sysfd("accept")
	if err != nil {
		return nil, nil, err
	}

	nfd, sa, err := ignoreEINTR3(func() (int, unix.Sockaddr, error) {
		return sysAccept(fd)
	})
	nfd, err = checkHandle("accept", nfd, err)
	if err != nil {
		return nil, nil, err
	}

	return &Socket{fd: nfd}, sa, nil
}

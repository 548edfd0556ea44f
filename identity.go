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

// Shutdown disables the receive (unix.SHUT_RD), send (unix.SHUT_WR) or both
// (unix.SHUT_RDWR) directions of a connection without releasing the
// socket, see shutdown(2).
func (s *Socket) Shutdown(how int) error {
	fd, err := s.sysfd("shutdown")
	if err != nil {
		return err
	}

	return checkStatus("shutdown", unix.Shutdown(fd, how))
}

// PeerName returns the address of the connected peer, see getpeername(2).
func (s *Socket) PeerName() (unix.Sockaddr, error) {
	fd, err := s.sysfd("getpeername")
	if err != nil {
		return nil, err
	}

	sa, err := unix.Getpeername(fd)
	return checkQuery("getpeername", sa, err)
}

// HostName returns the host name of the local machine, see gethostname(2).
// Like gethostname it fails with ENAMETOOLONG if the name and its
// terminating NUL do not fit in capacity bytes.
func HostName(capacity int) (string, error) {
	name, err := hostName(capacity)
	return checkQuery("gethostname", name, err)
}

func hostName(capacity int) (string, error) {
	if capacity <= 0 {
		return "", unix.EINVAL
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}

	name := unix.ByteSliceToString(uts.Nodename[:])
	if len(name)+1 > capacity {
		return "", unix.ENAMETOOLONG
	}

	return name, nil
}

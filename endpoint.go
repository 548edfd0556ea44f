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
	"time"

	"golang.org/x/sys/unix"
)

// Bind assigns a local address to the socket, see bind(2).
func (s *Socket) Bind(sa unix.Sockaddr) error {
	fd, err := s.sysfd("bind")
	if err != nil {
		return err
	}

	if sa == nil {
		return checkStatus("bind", unix.EINVAL)
	}

	return checkStatus("bind", unix.Bind(fd, sa))
}

// SetOption sets an integer socket option, see setsockopt(2).
func (s *Socket) SetOption(level, name, value int) error {
	fd, err := s.sysfd("setsockopt")
	if err != nil {
		return err
	}

	return checkStatus("setsockopt", unix.SetsockoptInt(fd, level, name, value))
}

// SetLinger sets SO_LINGER. A negative duration disables lingering.
func (s *Socket) SetLinger(d time.Duration) error {
	fd, err := s.sysfd("setsockopt")
	if err != nil {
		return err
	}

	l := &unix.Linger{}
	if d >= 0 {
		l.Onoff = 1
		l.Linger = int32(d / time.Second)
	}

	return checkStatus("setsockopt", unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l))
}

// SetTimeout sets a timeval socket option, typically SO_RCVTIMEO or
// SO_SNDTIMEO. A zero duration blocks forever.
func (s *Socket) SetTimeout(name int, d time.Duration) error {
	fd, err := s.sysfd("setsockopt")
	if err != nil {
		return err
	}

	tv := unix.NsecToTimeval(d.Nanoseconds())
	return checkStatus("setsockopt", unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, name, &tv))
}

// Option reads an integer socket option, see getsockopt(2).
func (s *Socket) Option(level, name int) (int, error) {
	fd, err := s.sysfd("getsockopt")
	if err != nil {
		return 0, err
	}

	value, err := unix.GetsockoptInt(fd, level, name)
	return checkQuery("getsockopt", value, err)
}

// LocalAddr returns the address the socket is bound to, see getsockname(2).
func (s *Socket) LocalAddr() (unix.Sockaddr, error) {
	fd, err := s.sysfd("getsockname")
	if err != nil {
		return nil, err
	}

	sa, err := unix.Getsockname(fd)
	return checkQuery("getsockname", sa, err)
}

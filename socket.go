// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 The Noisy Sockets Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package sockets is a thin wrapper over the Berkeley sockets syscalls.
//
// Each wrapper issues exactly one syscall and reduces that syscall's own
// failure convention (a -1 sentinel, a negative byte count, a non-zero
// resolver status) to a single rule: it returns a usable value, or an
// *OpError naming the failing operation. The one non-error outcome that
// callers must check for is a zero byte receive, which means the peer
// performed an orderly shutdown.
//
// Callers that prefer to terminate the process on any failure should use
// the failfast package, which mirrors every operation here.
package sockets

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// DefaultBacklog is a reasonable listen backlog. The kernel silently
// truncates it to net.core.somaxconn.
const DefaultBacklog = 511

// Socket is an owned socket descriptor. The descriptor is closed exactly
// once, by the first call to Close.
type Socket struct {
	fd     int
	closed atomic.Bool
}

// NewSocket creates a socket endpoint, see socket(2). The descriptor is
// created close-on-exec.
func NewSocket(family, sotype, proto int) (*Socket, error) {
	fd, err := ignoreEINTR2(func() (int, error) {
		return sysSocket(family, sotype, proto)
	})
	fd, err = checkHandle("socket", fd, err)
	if err != nil {
		return nil, err
	}

	return &Socket{fd: fd}, nil
}

// NewSocketFromFd takes ownership of an existing socket descriptor.
func NewSocketFromFd(fd int) *Socket {
	return &Socket{fd: fd}
}

// Fd returns the underlying descriptor, or -1 if the socket is closed.
func (s *Socket) Fd() int {
	if s == nil || s.closed.Load() {
		return -1
	}
	return s.fd
}

// Close closes the socket, see close(2). A second call returns ErrClosed
// rather than closing a descriptor number that may since have been reused.
func (s *Socket) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return &OpError{Op: "close", Err: ErrClosed}
	}

	// Not restarted on EINTR, Linux releases the descriptor regardless.
	return checkStatus("close", unix.Close(s.fd))
}

// sysfd returns the descriptor for use by op.
func (s *Socket) sysfd(op string) (int, error) {
	if s == nil || s.closed.Load() {
		return -1, &OpError{Op: op, Err: ErrClosed}
	}
	return s.fd, nil
}

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
	"errors"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when an operation is attempted on a socket that
// has already been closed.
var ErrClosed = errors.New("use of closed socket")

// OpError is the error returned by every wrapper in this package. It
// records the name of the failing syscall and the underlying cause, which
// is a unix.Errno, an AddrinfoErrno or ErrClosed.
type OpError struct {
	// Op is the name of the failing syscall, eg. "bind" or "getaddrinfo".
	Op string
	// Err is the cause of the failure.
	Err error
}

func (e *OpError) Error() string {
	return e.Op + " error: " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the operation may succeed.
func (e *OpError) Temporary() bool {
	var t interface{ Temporary() bool }
	if errors.As(e.Err, &t) {
		return t.Temporary()
	}
	return false
}

// Timeout reports whether the operation failed because of a socket timeout
// (SO_RCVTIMEO / SO_SNDTIMEO expiring).
func (e *OpError) Timeout() bool {
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) {
		return t.Timeout()
	}
	return false
}

// The adapters below each implement one failure signaling convention.
// golang.org/x/sys/unix already turns the -1 sentinel into an errno, so
// what remains is deciding what counts as failure for each call family.

// checkStatus handles calls that only report success or failure.
func checkStatus(op string, err error) error {
	if err != nil {
		return &OpError{Op: op, Err: err}
	}
	return nil
}

// checkHandle handles calls that return a new descriptor.
func checkHandle(op string, fd int, err error) (int, error) {
	if err == nil && fd < 0 {
		err = unix.EBADF
	}
	if err != nil {
		return -1, &OpError{Op: op, Err: err}
	}
	return fd, nil
}

// checkCount handles the send family, where a negative count is failure.
func checkCount(op string, n int, err error) (int, error) {
	if err == nil && n < 0 {
		err = unix.EINVAL
	}
	if err != nil {
		return 0, &OpError{Op: op, Err: err}
	}
	return n, nil
}

// checkReceive handles the receive family. A negative count is failure,
// a zero count is an orderly shutdown by the peer and is passed through.
func checkReceive(op string, n int, err error) (int, error) {
	return checkCount(op, n, err)
}

// checkResolve handles the resolver, which reports failure with a non-zero
// status code rather than errno.
func checkResolve(code AddrinfoErrno) error {
	if code != 0 {
		return &OpError{Op: "getaddrinfo", Err: code}
	}
	return nil
}

// checkQuery handles calls that fill in a value (an address, a name or an
// option) or fail.
func checkQuery[T any](op string, v T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, &OpError{Op: op, Err: err}
	}
	return v, nil
}

// Blocking syscalls are restarted when interrupted by a signal, the Go
// runtime signals its threads for preemption.

func ignoreEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}

func ignoreEINTR2[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if err != unix.EINTR {
			return v, err
		}
	}
}

func ignoreEINTR3[T, U any](fn func() (T, U, error)) (T, U, error) {
	for {
		v, w, err := fn()
		if err != unix.EINTR {
			return v, w, err
		}
	}
}
